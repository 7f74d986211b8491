package ceph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jandubois/infraprobe/internal/probe"
	"github.com/jandubois/infraprobe/internal/runner"
)

// Options configure the ceph command line client.
type Options struct {
	Path    string
	Client  string
	Keyring string
}

// Args returns the client arguments for a ceph subcommand.
func (o Options) Args(sub ...string) []string {
	args := []string{"--format", "json", "--name", o.Client, "--keyring", o.Keyring}
	return append(args, sub...)
}

// CommandSource runs the ceph client and decodes the last line of its output.
type CommandSource struct {
	Runner  runner.Runner
	Options Options
}

var _ Source = (*CommandSource)(nil)

func (s *CommandSource) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := s.fetch(ctx, &st, "status"); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *CommandSource) OSDDump(ctx context.Context) (*OSDDump, error) {
	var dump OSDDump
	if err := s.fetch(ctx, &dump, "osd", "dump"); err != nil {
		return nil, err
	}
	return &dump, nil
}

func (s *CommandSource) PGDumpOSDs(ctx context.Context) ([]OSDUsage, error) {
	var usage []OSDUsage
	if err := s.fetch(ctx, &usage, "pg", "dump", "osds"); err != nil {
		return nil, err
	}
	return usage, nil
}

func (s *CommandSource) fetch(ctx context.Context, v any, sub ...string) error {
	res, err := s.Runner.Run(ctx, s.Options.Path, s.Options.Args(sub...)...)
	if err != nil {
		return err
	}
	cmd := strings.Join(sub, " ")
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("ceph %s exited with code %d", cmd, res.ExitCode)
		}
		return probe.ExtractionFailure(msg, nil)
	}

	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return probe.ExtractionFailure("No output received from ceph. Cannot gather metrics.", nil)
	}
	// Status messages may precede the JSON document.
	last := out[strings.LastIndex(out, "\n")+1:]
	if err := json.Unmarshal([]byte(last), v); err != nil {
		return probe.ExtractionFailure("decode ceph "+cmd, err)
	}
	return nil
}
