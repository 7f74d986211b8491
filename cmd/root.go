package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jandubois/infraprobe/internal/config"
	"github.com/jandubois/infraprobe/internal/logging"
	"github.com/jandubois/infraprobe/internal/probe"
)

// Version is set at build time via -ldflags "-X github.com/jandubois/infraprobe/cmd.Version=..."
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "infraprobe",
	Short: "Health checks for clustered databases, OpenStack APIs and ceph",
	Long: `Infraprobe runs one health check per invocation and prints its metrics
in the monitoring agent's plain-text protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

const probeGroupID = "probes"

// errReported is returned by a check whose failure is already on stdout.
var errReported = errors.New("check failed")

// runtime is shared by every probe subcommand. It is set by setup.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	reporter *probe.Reporter
}

var app *runtime

// Execute runs the command line. Errors that happen before a check could
// report, such as invalid arguments, are written as a status line.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app = nil
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		errorReporter().Report(probe.Failed(err))
	}
	if app != nil {
		_ = app.log.Sync()
	}
	return err
}

// ExecuteProbe runs a single probe subcommand with the process arguments,
// for binaries installed under a plugin's own name.
func ExecuteProbe(path ...string) error {
	rootCmd.SetArgs(append(path, os.Args[1:]...))
	return Execute()
}

// errorReporter returns the run's reporter, or one for the --format flag if
// the run failed before setup.
func errorReporter() *probe.Reporter {
	if app != nil {
		return app.reporter
	}
	name, _ := rootCmd.PersistentFlags().GetString("format")
	format, err := probe.ParseFormat(name)
	if err != nil {
		format = probe.FormatMaaS
	}
	return probe.NewReporter(rootCmd.OutOrStdout(), format, nil)
}

func init() {
	rootCmd.PersistentPreRunE = setup
	rootCmd.SetGlobalNormalizationFunc(underscoreFlags)
	rootCmd.AddGroup(&cobra.Group{ID: probeGroupID, Title: "Built-in Probes:"})
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().String("format", config.DefaultFormat, "Output format (maas, prometheus)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-dir", config.DefaultLogDir, "Log directory, empty to disable logging")
}

// underscoreFlags accepts --osd_ids for --osd-ids.
func underscoreFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// setup loads the config file, applies flag overrides and builds the logger
// and reporter for the probe being run.
func setup(cmd *cobra.Command, args []string) error {
	if cmd == rootCmd {
		return nil
	}

	cfg, err := config.Load(getConfigPath(cmd))
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-dir") {
		cfg.Log.Dir, _ = flags.GetString("log-dir")
	}

	format, err := probe.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	maxSize, err := cfg.Log.MaxSizeBytes()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Dir, cfg.Log.Level, maxSize)
	if errors.Is(err, logging.ErrUnavailable) {
		fmt.Fprintf(cmd.ErrOrStderr(), "infraprobe: logging disabled: %v\n", err)
		log, err = zap.NewNop(), nil
	}
	if err != nil {
		return err
	}
	log = log.With(zap.String("probe", cmd.CommandPath()))

	app = &runtime{
		cfg:      cfg,
		log:      log,
		reporter: probe.NewReporter(cmd.OutOrStdout(), format, log),
	}
	return nil
}

func getConfigPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("INFRAPROBE_CONFIG")
	}
	return path
}
