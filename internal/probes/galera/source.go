package galera

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/jandubois/infraprobe/internal/probe"
	"github.com/jandubois/infraprobe/internal/runner"
)

// Options configure the mysql command line client.
type Options struct {
	MySQLPath    string
	DefaultsFile string
	Host         string
	Port         string
}

// Args returns the client arguments for q. Credentials come from the
// defaults file; Host and Port override it when set.
func (o Options) Args(q Query) []string {
	args := []string{"--defaults-file=" + o.DefaultsFile}
	if o.Host != "" {
		args = append(args, "-h", o.Host)
	}
	if o.Port != "" {
		args = append(args, "-P", o.Port)
	}
	return append(args, "-e", string(q))
}

// CommandSource runs queries through the mysql client and parses its
// tab-separated output.
type CommandSource struct {
	Runner  runner.Runner
	Options Options
}

// Fetch runs q and returns the parsed rows.
func (s *CommandSource) Fetch(ctx context.Context, q Query) (probe.FactTable, error) {
	res, err := s.Runner.Run(ctx, s.Options.MySQLPath, s.Options.Args(q)...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("mysql exited with code %d", res.ExitCode)
		}
		return nil, probe.ExtractionFailure(msg, nil)
	}
	if res.Stdout == "" {
		return nil, probe.ExtractionFailure("No output received from mysql. Cannot gather metrics.", nil)
	}
	return probe.ParseTabular(res.Stdout)
}

// SQLSource runs queries over a database/sql connection. Rows are already
// structured, so no header or footer is discarded.
type SQLSource struct {
	DB *sql.DB

	// Statements overrides the SQL run for a query.
	Statements map[Query]string
}

// OpenSQL connects to dsn with the MySQL driver.
func OpenSQL(ctx context.Context, dsn string) (*SQLSource, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, probe.ExtractionFailure("ping database", err)
	}
	return &SQLSource{DB: db}, nil
}

// Close closes the underlying connection.
func (s *SQLSource) Close() error {
	return s.DB.Close()
}

// Fetch runs q and returns every (name, value) row.
func (s *SQLSource) Fetch(ctx context.Context, q Query) (probe.FactTable, error) {
	stmt := string(q)
	if override, ok := s.Statements[q]; ok {
		stmt = override
	}

	rows, err := s.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, probe.ExtractionFailure(fmt.Sprintf("query %q", stmt), err)
	}
	defer rows.Close()

	facts := make(probe.FactTable)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, probe.ExtractionFailure("scan row", err)
		}
		facts[name] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, probe.ExtractionFailure(fmt.Sprintf("query %q", stmt), err)
	}
	if len(facts) == 0 {
		return nil, probe.ExtractionFailure("No output received from mysql. Cannot gather metrics.", nil)
	}
	return facts, nil
}
