// sheetdex loads spreadsheets into a document store and queries them back.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetdex/sheetdex/pkg/config"
	"github.com/sheetdex/sheetdex/pkg/logging"
	"github.com/sheetdex/sheetdex/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configPath string
	esAddrs    string
	logLevel   string
	logFormat  string
	verbose    bool
	timeout    time.Duration
)

// Loaded in PersistentPreRunE.
var (
	cfg               *config.Config
	logger            *slog.Logger
	shutdownTelemetry = func(context.Context) error { return nil }
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sheetdex",
	Short: "sheetdex - index spreadsheet rows as search documents",
	Long: `sheetdex reads .xlsx workbooks, maps every data row to a flat document keyed
by the sanitized header names, and bulk-indexes the documents into Elasticsearch.

Configuration is read from /etc/sheetdex/config.yaml, ~/.sheetdex/config.yaml,
./.sheetdex.yaml, .env and SHEETDEX_* environment variables, in that order.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTelemetry(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (in addition to the default locations)")
	rootCmd.PersistentFlags().StringVar(&esAddrs, "es", "", "Elasticsearch addresses, comma separated")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and metrics")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort the command after this long (0 = no limit)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(indicesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
}

// setup loads configuration, applies flag overrides and starts logging and tracing.
func setup(cmd *cobra.Command, args []string) error {
	mgr := config.NewManager()
	mgr.ExplicitPath = configPath
	if err := mgr.Load(); err != nil {
		return err
	}
	cfg = mgr.Get()

	if esAddrs != "" {
		cfg.Store.Addresses = strings.Split(esAddrs, ",")
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	logger.Debug("configuration loaded", "files", mgr.GetPaths())

	shutdown, err := telemetry.Init(cmd.Context(), cfg.TelemetryConfig())
	if err != nil {
		// Tracing is optional; the command still runs.
		logger.Warn("telemetry disabled", "error", err)
		return nil
	}
	shutdownTelemetry = shutdown
	return nil
}

// commandContext is canceled on SIGINT/SIGTERM or when --timeout elapses.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
