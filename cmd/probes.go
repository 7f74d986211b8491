package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jandubois/infraprobe/internal/openstack"
	"github.com/jandubois/infraprobe/internal/probe"
	"github.com/jandubois/infraprobe/internal/probes"
	"github.com/jandubois/infraprobe/internal/probes/ceph"
	"github.com/jandubois/infraprobe/internal/probes/galera"
	"github.com/jandubois/infraprobe/internal/probes/neutron"
	"github.com/jandubois/infraprobe/internal/probes/nova"
	"github.com/jandubois/infraprobe/internal/runner"
)

// galera probe
var galeraCmd = &cobra.Command{
	Use:   galera.Name,
	Short: "Check Galera cluster membership, sync state and server counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetString("port")

		return runCheck(cmd, func(ctx context.Context) probe.Outcome {
			src, closeSource, err := galeraSource(ctx, host, port)
			if err != nil {
				return probe.Failed(err)
			}
			defer closeSource()
			return galera.Run(ctx, src, app.log)
		})
	},
}

// neutron-api probe
var neutronCmd = &cobra.Command{
	Use:   neutron.Name + " [ip]",
	Short: "Check the Neutron API",
	Args:  optionalIPv4,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, _ := parseIPv4(args)

		return runCheck(cmd, func(ctx context.Context) probe.Outcome {
			sess, err := openstack.SessionFromEnv(app.cfg.OpenStack.Region, app.log)
			if err != nil {
				return probe.Failed(err)
			}
			client, err := sess.Network(ctx, ip)
			return neutron.Run(ctx, openstack.Reach[neutron.Client](client, err), clockwork.NewRealClock())
		})
	},
}

// nova-api probe
var novaCmd = &cobra.Command{
	Use:   nova.Name + " [ip]",
	Short: "Check the Nova API",
	Args:  optionalIPv4,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, _ := parseIPv4(args)

		return runCheck(cmd, func(ctx context.Context) probe.Outcome {
			sess, err := openstack.SessionFromEnv(app.cfg.OpenStack.Region, app.log)
			if err != nil {
				return probe.Failed(err)
			}
			client, err := sess.Compute(ctx, ip)
			return nova.Run(ctx, openstack.Reach[nova.Client](client, err), clockwork.NewRealClock())
		})
	},
}

// ceph probes
var cephCmd = &cobra.Command{
	Use:   ceph.Name,
	Short: "Check a ceph cluster, monitor or OSDs",
}

var cephClusterCmd = &cobra.Command{
	Use:   ceph.ModeCluster,
	Short: "Report overall cluster health and capacity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd, func(ctx context.Context) probe.Outcome {
			return ceph.Cluster(ctx, cephSource(cmd), app.cfg.Ceph.ClusterNamespace, app.log)
		})
	},
}

var cephMonCmd = &cobra.Command{
	Use:   ceph.ModeMon,
	Short: "Report whether a monitor is in quorum and its health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")

		return runCheck(cmd, func(ctx context.Context) probe.Outcome {
			return ceph.Mon(ctx, cephSource(cmd), host)
		})
	},
}

var cephOSDCmd = &cobra.Command{
	Use:   ceph.ModeOSD,
	Short: "Report the state and capacity of OSDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("osd-ids")
		ids, err := ceph.ParseOSDIDs(raw)
		if err != nil {
			return err
		}

		return runCheck(cmd, func(ctx context.Context) probe.Outcome {
			return ceph.OSD(ctx, cephSource(cmd), ids)
		})
	},
}

func init() {
	// Add flags to root
	rootCmd.Flags().BoolP("version", "v", false, "Print version and exit")
	rootCmd.Flags().Bool("describe", false, "Output built-in probe descriptions as JSON array")

	// Override Run to handle flags
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Fprintf(cmd.OutOrStdout(), "infraprobe version %s\n", Version)
			return
		}
		if describe, _ := cmd.Flags().GetBool("describe"); describe {
			printDescriptions(cmd)
			return
		}
		cmd.Help()
	}

	// Add probe subcommands
	for _, c := range []*cobra.Command{galeraCmd, neutronCmd, novaCmd, cephCmd} {
		c.GroupID = probeGroupID
		rootCmd.AddCommand(c)
	}
	cephCmd.AddCommand(cephClusterCmd, cephMonCmd, cephOSDCmd)

	// galera flags
	galeraCmd.Flags().StringP("host", "H", "", "Host to override the defaults file with")
	galeraCmd.Flags().StringP("port", "P", "", "Port to override the defaults file with")

	// ceph flags
	cephCmd.PersistentFlags().String("name", "", "Ceph client name")
	cephCmd.PersistentFlags().String("keyring", "", "Ceph client keyring")
	cephCmd.MarkPersistentFlagRequired("name")
	cephCmd.MarkPersistentFlagRequired("keyring")
	cephMonCmd.Flags().String("host", "", "Mon hostname")
	cephMonCmd.MarkFlagRequired("host")
	cephOSDCmd.Flags().String("osd-ids", "", "Space or comma separated list of OSD IDs")
	cephOSDCmd.MarkFlagRequired("osd-ids")
}

// newRunner builds the runner for command-backed sources.
var newRunner = func(log *zap.Logger) runner.Runner {
	return runner.Exec{Log: log}
}

// runCheck runs check under the reporter and writes its outcome. A failed
// check returns errReported so that the process exits with status 1.
func runCheck(cmd *cobra.Command, check func(ctx context.Context) probe.Outcome) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	o := app.reporter.Guard(func() probe.Outcome { return check(ctx) })
	if code := app.reporter.Report(o); code != 0 {
		return errReported
	}
	return nil
}

// galeraSource connects directly when a DSN is configured and falls back to
// the mysql client otherwise.
func galeraSource(ctx context.Context, host, port string) (galera.Source, func(), error) {
	cfg := app.cfg.Galera
	if cfg.DSN != "" {
		if host != "" || port != "" {
			app.log.Warn("host and port flags are ignored when galera.dsn is set")
		}
		src, err := galera.OpenSQL(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {
			if err := src.Close(); err != nil {
				app.log.Warn("close database", zap.Error(err))
			}
		}, nil
	}

	src := &galera.CommandSource{
		Runner: newRunner(app.log),
		Options: galera.Options{
			MySQLPath:    cfg.MySQLPath,
			DefaultsFile: cfg.DefaultsFile,
			Host:         host,
			Port:         port,
		},
	}
	return src, func() {}, nil
}

func cephSource(cmd *cobra.Command) *ceph.CommandSource {
	name, _ := cmd.Flags().GetString("name")
	keyring, _ := cmd.Flags().GetString("keyring")
	return &ceph.CommandSource{
		Runner: newRunner(app.log),
		Options: ceph.Options{
			Path:    app.cfg.Ceph.Path,
			Client:  name,
			Keyring: keyring,
		},
	}
}

// optionalIPv4 accepts no arguments or a single IPv4 address.
func optionalIPv4(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return err
	}
	_, err := parseIPv4(args)
	return err
}

// parseIPv4 returns the zero Addr when no address is given.
func parseIPv4(args []string) (netip.Addr, error) {
	if len(args) == 0 {
		return netip.Addr{}, nil
	}
	ip, err := netip.ParseAddr(args[0])
	if err != nil || !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q", args[0])
	}
	return ip, nil
}

func printDescriptions(cmd *cobra.Command) {
	json.NewEncoder(cmd.OutOrStdout()).Encode(probes.GetAllDescriptions())
}
