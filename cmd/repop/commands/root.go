package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/telemetry"
)

// app holds the global flags and the telemetry shared by every command.
type app struct {
	version string

	logLevel     string
	logFormat    string
	trace        bool
	otlpEndpoint string
	policyPaths  []string

	// metricsListen is set by watch to serve metrics over HTTP.
	metricsListen string

	tel *telemetry.Telemetry
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	a := &app{version: version}
	rootCmd := newRootCommand(a, version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	if shutdownErr := a.shutdown(); err == nil {
		err = shutdownErr
	}
	return err
}

func newRootCommand(a *app, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "repop",
		Short: "repop - refinery planning optimizer",
		Long: `repop compiles a declarative refinery description into a linear program,
solves it and reports the optimal plan.

Features:
  - Plant documents in YAML, CUE or HCL
  - Pluggable constraint kinds, including Starlark scripts
  - Network lint policies via OPA/rego
  - Console reports, JSON output and Graphviz flowcharts`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&a.trace, "trace", false, "print stage spans to stderr")
	rootCmd.PersistentFlags().StringVar(&a.otlpEndpoint, "otlp-endpoint", "", "export spans to this OTLP gRPC endpoint")
	rootCmd.PersistentFlags().StringSliceVar(&a.policyPaths, "policy", nil, "extra lint policy files or directories")

	rootCmd.AddCommand(newValidateCommand(a))
	rootCmd.AddCommand(newOptimizeCommand(a))
	rootCmd.AddCommand(newLevelsCommand(a))
	rootCmd.AddCommand(newFlowchartCommand(a))
	rootCmd.AddCommand(newKindsCommand(a))
	rootCmd.AddCommand(newWatchCommand(a))
	rootCmd.AddCommand(newConvertCommand(a))

	return rootCmd
}

// setup builds telemetry from the global flags and stores it on the command context.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := telemetry.DefaultConfig()
	if a.metricsListen != "" {
		cfg = telemetry.WatchConfig(a.metricsListen)
	}
	cfg.ServiceVersion = a.version
	cfg.Logging.Level = a.logLevel
	cfg.Logging.Format = a.logFormat

	switch {
	case a.otlpEndpoint != "":
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.Endpoint = a.otlpEndpoint
	case a.trace:
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "stdout"
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("invalid telemetry flags: %w", err)
	}
	zerolog.SetGlobalLevel(telemetry.ParseLevel(a.logLevel))

	a.tel = tel
	cmd.SetContext(tel.WithContext(cmd.Context()))
	return nil
}

func (a *app) shutdown() error {
	if a.tel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.tel.Config.Tracing.ExportTimeout)
	defer cancel()
	return a.tel.Shutdown(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
