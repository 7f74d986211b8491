package galera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/infraprobe/internal/probe"
	"github.com/jandubois/infraprobe/internal/runner"
)

const testUUID = "b7a3c6d2-1f4e-11ee-9a5b-0242ac120002"

func syncedStatus() probe.FactTable {
	return probe.FactTable{
		"wsrep_replicated_bytes":    "104857600",
		"wsrep_received_bytes":      "2048",
		"wsrep_commit_window":       "1.000000",
		"wsrep_cluster_size":        "3",
		"Queries":                   "98231",
		"wsrep_cluster_state_uuid":  testUUID,
		"wsrep_cluster_status":      "Primary",
		"wsrep_local_state_uuid":    testUUID,
		"wsrep_local_state":         "4",
		"wsrep_local_state_comment": "Synced",
		"Threads_connected":         "12",
		"Max_used_connections":      "40",
		"Open_files":                "31",
		"Innodb_row_lock_time_avg":  "0",
		"Innodb_deadlocks":          "0",
		"Access_denied_errors":      "2",
		"Aborted_clients":           "5",
		"Aborted_connects":          "1",
	}
}

func syncedVariables() probe.FactTable {
	return probe.FactTable{
		"max_connections":  "151",
		"open_files_limit": "65535",
	}
}

func syncedFacts() probe.FactTable {
	facts := syncedStatus()
	facts.Merge(syncedVariables())
	return facts
}

// tabular renders facts the way the mysql client prints them in batch mode.
func tabular(facts probe.FactTable) string {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("Variable_name\tValue\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s\t%s\n", k, facts[k])
	}
	return sb.String()
}

type mapSource map[Query]probe.FactTable

func (m mapSource) Fetch(_ context.Context, q Query) (probe.FactTable, error) {
	facts, ok := m[q]
	if !ok {
		return nil, errors.New("unexpected query")
	}
	out := make(probe.FactTable, len(facts))
	out.Merge(facts)
	return out, nil
}

func TestEvaluateSynced(t *testing.T) {
	o := Evaluate(syncedFacts(), nil)

	require.NoError(t, o.Err)
	assert.Equal(t, probe.VerdictHealthy, o.Verdict)
	require.Len(t, o.Metrics, 19)

	got := make([]string, len(o.Metrics))
	for i, m := range o.Metrics {
		assert.Equal(t, Namespace, m.Namespace)
		got[i] = m.Name
	}
	assert.Equal(t, MetricNames(), got)

	assert.Equal(t, probe.Metric{Namespace: "galera", Name: "wsrep_commit_window_size", Value: "1.000000"}, o.Metrics[2])
	assert.Equal(t, probe.Metric{Namespace: "galera", Name: "mysql_max_configured_connections", Value: "151"}, o.Metrics[9])
	assert.Equal(t, probe.Metric{Namespace: "galera", Name: "aborted_connects", Value: "1"}, o.Metrics[18])
}

func TestEvaluatePartitioned(t *testing.T) {
	for _, status := range []string{"non-Primary", "Disconnected", ""} {
		t.Run(status, func(t *testing.T) {
			facts := syncedFacts()
			facts["wsrep_cluster_status"] = status

			o := Evaluate(facts, nil)

			require.Error(t, o.Err)
			assert.True(t, errors.Is(o.Err, probe.ErrHealthGate))
			assert.Equal(t, probe.VerdictUnhealthy, o.Verdict)
			assert.Equal(t, "there is a partition in the cluster", o.Err.Error())
			assert.Empty(t, o.Metrics)
		})
	}
}

func TestEvaluatePartitionedIgnoresOtherFacts(t *testing.T) {
	o := Evaluate(probe.FactTable{"wsrep_cluster_status": "non-Primary"}, nil)

	require.Error(t, o.Err)
	assert.Equal(t, "there is a partition in the cluster", o.Err.Error())
	assert.Empty(t, o.Metrics)
}

func TestEvaluateOutOfSync(t *testing.T) {
	facts := syncedFacts()
	facts["wsrep_local_state_uuid"] = "00000000-0000-0000-0000-000000000000"

	o := Evaluate(facts, nil)

	require.Error(t, o.Err)
	assert.True(t, errors.Is(o.Err, probe.ErrHealthGate))
	assert.Equal(t, "the local node is out of sync", o.Err.Error())
	assert.Empty(t, o.Metrics)
}

func TestEvaluateQuietIncomplete(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		comment string
	}{
		{"donor", "2", "Donor/Desynced"},
		{"joining", "1", "Joining"},
		{"state 4 without Synced comment", "4", "Donor/Desynced"},
		{"Synced comment without state 4", "2", "Synced"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := syncedFacts()
			facts["wsrep_local_state"] = tt.state
			facts["wsrep_local_state_comment"] = tt.comment

			o := Evaluate(facts, nil)

			assert.NoError(t, o.Err)
			assert.Equal(t, probe.VerdictIncomplete, o.Verdict)
			assert.Empty(t, o.Metrics)
		})
	}
}

func TestEvaluateNonNumericState(t *testing.T) {
	facts := syncedFacts()
	facts["wsrep_local_state"] = "synced"

	o := Evaluate(facts, nil)

	require.Error(t, o.Err)
	assert.False(t, errors.Is(o.Err, probe.ErrHealthGate))
	assert.Empty(t, o.Metrics)
}

func TestEvaluateMissingMetricFact(t *testing.T) {
	facts := syncedFacts()
	delete(facts, "Aborted_connects")

	o := Evaluate(facts, nil)

	require.Error(t, o.Err)
	assert.True(t, errors.Is(o.Err, probe.ErrExtraction))
	assert.Empty(t, o.Metrics)
}

func TestCollectMergesWithoutOverwrite(t *testing.T) {
	status := syncedStatus()
	status["shared_key"] = "from-status"
	variables := syncedVariables()
	variables["shared_key"] = "from-variables"

	facts, err := Collect(context.Background(), mapSource{QueryStatus: status, QueryVariables: variables})
	require.NoError(t, err)

	assert.Len(t, facts, len(status)+len(variables)-1)
	assert.Equal(t, "from-status", facts["shared_key"])
	assert.Equal(t, "151", facts["max_connections"])
}

func TestOptionsArgs(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		query    Query
		expected []string
	}{
		{
			name:     "defaults file only",
			opts:     Options{DefaultsFile: "/root/.my.cnf"},
			query:    QueryStatus,
			expected: []string{"--defaults-file=/root/.my.cnf", "-e", "SHOW GLOBAL STATUS"},
		},
		{
			name:     "host override",
			opts:     Options{DefaultsFile: "/root/.my.cnf", Host: "10.0.0.5"},
			query:    QueryVariables,
			expected: []string{"--defaults-file=/root/.my.cnf", "-h", "10.0.0.5", "-e", "SHOW GLOBAL VARIABLES"},
		},
		{
			name:     "host and port override",
			opts:     Options{DefaultsFile: "/root/.my.cnf", Host: "10.0.0.5", Port: "3307"},
			query:    QueryStatus,
			expected: []string{"--defaults-file=/root/.my.cnf", "-h", "10.0.0.5", "-P", "3307", "-e", "SHOW GLOBAL STATUS"},
		},
		{
			name:     "port override",
			opts:     Options{DefaultsFile: "/root/.my.cnf", Port: "3307"},
			query:    QueryStatus,
			expected: []string{"--defaults-file=/root/.my.cnf", "-P", "3307", "-e", "SHOW GLOBAL STATUS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.opts.Args(tt.query))
		})
	}
}

func fakeMySQL(t *testing.T, outputs map[Query]runner.Result) runner.Runner {
	t.Helper()
	return runner.Func(func(_ context.Context, name string, args ...string) (runner.Result, error) {
		assert.Equal(t, "/usr/bin/mysql", name)
		q := Query(args[len(args)-1])
		res, ok := outputs[q]
		if !ok {
			t.Fatalf("unexpected query %q", q)
		}
		return res, nil
	})
}

func commandSource(r runner.Runner) *CommandSource {
	return &CommandSource{
		Runner:  r,
		Options: Options{MySQLPath: "/usr/bin/mysql", DefaultsFile: "/root/.my.cnf"},
	}
}

func TestRunWithCommandSource(t *testing.T) {
	src := commandSource(fakeMySQL(t, map[Query]runner.Result{
		QueryStatus:    {Stdout: tabular(syncedStatus())},
		QueryVariables: {Stdout: tabular(syncedVariables())},
	}))

	o := Run(context.Background(), src, nil)

	require.NoError(t, o.Err)
	assert.Len(t, o.Metrics, 19)
}

func TestRunCommandNonZeroExit(t *testing.T) {
	src := commandSource(fakeMySQL(t, map[Query]runner.Result{
		QueryStatus: {ExitCode: 1, Stderr: "ERROR 1045 (28000): Access denied for user 'root'@'localhost'\n"},
	}))

	o := Run(context.Background(), src, nil)

	require.Error(t, o.Err)
	assert.True(t, errors.Is(o.Err, probe.ErrExtraction))
	assert.Equal(t, "ERROR 1045 (28000): Access denied for user 'root'@'localhost'", o.Err.Error())
	assert.Empty(t, o.Metrics)
}

func TestRunCommandNonZeroExitWithoutStderr(t *testing.T) {
	src := commandSource(fakeMySQL(t, map[Query]runner.Result{
		QueryStatus: {ExitCode: 2},
	}))

	o := Run(context.Background(), src, nil)

	require.Error(t, o.Err)
	assert.Equal(t, "mysql exited with code 2", o.Err.Error())
}

func TestRunCommandNoOutput(t *testing.T) {
	src := commandSource(fakeMySQL(t, map[Query]runner.Result{
		QueryStatus:    {Stdout: tabular(syncedStatus())},
		QueryVariables: {Stdout: ""},
	}))

	o := Run(context.Background(), src, nil)

	require.Error(t, o.Err)
	assert.Equal(t, "No output received from mysql. Cannot gather metrics.", o.Err.Error())
	assert.Empty(t, o.Metrics)
}

func TestRunCommandMalformedOutput(t *testing.T) {
	src := commandSource(fakeMySQL(t, map[Query]runner.Result{
		QueryStatus: {Stdout: "Variable_name\tValue\nwsrep_cluster_status Primary\n"},
	}))

	o := Run(context.Background(), src, nil)

	require.Error(t, o.Err)
	assert.True(t, errors.Is(o.Err, probe.ErrExtraction))
}

func TestRunCommandStartFailure(t *testing.T) {
	src := commandSource(runner.Func(func(context.Context, string, ...string) (runner.Result, error) {
		return runner.Result{}, errors.New("run /usr/bin/mysql: no such file or directory")
	}))

	o := Run(context.Background(), src, nil)

	require.Error(t, o.Err)
	assert.Equal(t, probe.VerdictUnknown, o.Verdict)
}

func TestRunIsIdempotent(t *testing.T) {
	src := mapSource{QueryStatus: syncedStatus(), QueryVariables: syncedVariables()}

	first := Run(context.Background(), src, nil)
	second := Run(context.Background(), src, nil)

	assert.Equal(t, first, second)
}

func TestGetDescription(t *testing.T) {
	desc := GetDescription()
	if desc.Name != "galera" {
		t.Errorf("expected name 'galera', got %q", desc.Name)
	}
	if desc.Subcommand != Name {
		t.Errorf("expected subcommand %q, got %q", Name, desc.Subcommand)
	}
	for _, arg := range []string{"host", "port"} {
		if _, ok := desc.Arguments.Optional[arg]; !ok {
			t.Errorf("expected %q in optional arguments", arg)
		}
	}
	if len(desc.Metrics) != 19 {
		t.Errorf("expected 19 metrics, got %d", len(desc.Metrics))
	}
}
