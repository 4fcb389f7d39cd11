// Package cli wires configuration, logging, sampling and the session into
// the sysdiag command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysdiag/internal/config"
	"github.com/Dicklesworthstone/sysdiag/internal/errors"
	"github.com/Dicklesworthstone/sysdiag/internal/logger"
	"github.com/Dicklesworthstone/sysdiag/internal/runner"
	"github.com/Dicklesworthstone/sysdiag/internal/sampler"
	"github.com/Dicklesworthstone/sysdiag/internal/session"
	"github.com/Dicklesworthstone/sysdiag/internal/ui"
)

// dashboard runs the interactive UI. Tests replace it.
var dashboard = ui.Run

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sysdiag",
		Short: "Live system metrics with threshold alerts and CSV logging",
		Long: `Show CPU, memory, disk, network and battery usage with the top
processes, alert when a metric crosses its threshold, and log samples to CSV.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  up/k down/j Select process
  s           Toggle sort between CPU and memory
  p           Pause or resume auto-refresh
  r           Refresh now
  + / -       Lengthen or shorten the refresh interval
  l           Start or stop logging
  e           Export the log to a timestamped CSV file
  c           Clear the log
  x then y    Terminate the selected process

Examples:
  sysdiag
  sysdiag --interval 5s --cpu-threshold 90
  sysdiag --json
  sysdiag --json-stream --log-file samples.csv --log-on-start`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return monitorCommand(cmd, configPath)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML, TOML or JSON)")
	registerMonitorFlags(cmd.Flags())

	cmd.AddCommand(newKillCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func registerMonitorFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.Duration("interval", d.Interval, "refresh interval (e.g. 2s, 500ms)")
	fs.Duration("cpu-window", d.CPUWindow, "CPU measurement window, 0 to compare with the previous sample")
	fs.String("sort", d.Sort, "process ranking: cpu or mem")
	fs.Int("top", d.Top, "number of processes to show")
	fs.String("mount", d.MountPoint, "mount point whose disk usage is reported")
	fs.Bool("battery", d.Battery, "read battery state")
	fs.Float64("cpu-threshold", d.Thresholds.CPU, "CPU alert threshold in percent")
	fs.Float64("mem-threshold", d.Thresholds.Memory, "memory alert threshold in percent")
	fs.Float64("disk-threshold", d.Thresholds.Disk, "disk alert threshold in percent")
	fs.Float64("margin", d.HysteresisMargin, "hysteresis margin in percentage points")
	fs.Int("history", d.HistoryCapacity, "samples kept per history series")
	fs.Int("log-cap", d.LogCap, "maximum logged samples kept in memory")
	fs.String("log-file", d.LogFile, "append logged samples to this CSV file")
	fs.Bool("log-on-start", d.LogOnStart, "start with logging enabled")
	fs.Bool("extended-csv", d.ExtendedCSV, "add network and battery columns to CSV output")
	fs.String("export-dir", d.ExportDir, "directory for exported CSV files")
	fs.Duration("terminate-timeout", d.TerminateTimeout, "how long to wait for a terminated process to exit")
	fs.String("log-level", d.LogLevel, "diagnostic log level: debug, info, warn, error")
	fs.String("log-output", d.LogOutput, "diagnostic log output: stderr, stdout, discard or a file path")
	fs.Bool("json", d.JSON, "print one sample as JSON and exit")
	fs.Bool("json-stream", d.JSONStream, "print one JSON object per refresh until interrupted")
}

// loadConfig resolves defaults, config file, environment and flags, in
// increasing priority.
func loadConfig(cmd *cobra.Command, path string) (config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	return config.Load(v, path)
}

func monitorCommand(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	interactive := !cfg.JSON && !cfg.JSONStream
	logOutput := cfg.LogOutput
	if interactive && (logOutput == logger.OutputStderr || logOutput == logger.OutputStdout) {
		// The dashboard owns the terminal.
		logOutput = logger.OutputDiscard
	}
	log, closeLog, err := logger.New(cfg.LogLevel, logOutput)
	if err != nil {
		return errors.WrapWithSuggestion(err, errors.ErrConfig,
			"cannot set up logging",
			"check log_level and log_output")
	}
	defer func() {
		logger.Flush(log)
		_ = closeLog()
	}()

	smp := sampler.New(sampler.NewHostSource(),
		sampler.WithMount(cfg.MountPoint),
		sampler.WithCPUWindow(cfg.CPUWindow),
		sampler.WithBattery(cfg.Battery),
		sampler.WithLogger(log.Named("sampler")),
	)
	sess, err := session.New(cfg, smp, session.WithLogger(log.Named("session")))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Shutdown(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("sysdiag started",
		zap.Duration("interval", cfg.Interval),
		zap.String("mount", cfg.MountPoint),
		zap.Bool("interactive", interactive))

	return runMode(ctx, cmd.OutOrStdout(), cfg, sess, log)
}

func runMode(ctx context.Context, out io.Writer, cfg config.Config, sess *session.Session, log *zap.Logger) error {
	switch {
	case cfg.JSON:
		return runner.Once(ctx, out, sess)
	case cfg.JSONStream:
		return runner.Stream(ctx, out, sess, cfg.Interval, log)
	default:
		return dashboard(ctx, sess, log)
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch errors.Code(err) {
	case errors.ErrConfig, errors.ErrInvalidPID:
		return 2
	default:
		return 1
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
