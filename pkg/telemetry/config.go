package telemetry

import (
	"fmt"
	"slices"
	"time"
)

// Config holds logging, tracing and metrics settings for one repop process.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment is reported on spans (local, ci, planning).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures the zerolog logger. Reports own stdout, so logs go
// to stderr unless Output names a file.
type LoggingConfig struct {
	Level        string // trace, debug, info, warn, error, fatal
	Format       string // console or json
	Output       string // stderr, stdout or a file path
	TimeFormat   string // rfc3339, unix or unixms
	EnableCaller bool

	// Sampling keeps SamplingInitial lines per second, then every
	// SamplingThereafter-th.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int
}

// TracingConfig configures spans for the load, lint, assemble and solve stages.
type TracingConfig struct {
	Enabled  bool
	Exporter string // otlp, stdout or none
	Endpoint string // OTLP gRPC endpoint
	Insecure bool
	Headers  map[string]string

	SamplingRate       float64
	MaxExportBatchSize int
	ExportTimeout      time.Duration
}

// MetricsConfig configures the Prometheus registry. One-shot runs write a
// textfile; watch mode serves ListenAddress.
type MetricsConfig struct {
	Enabled       bool
	Namespace     string
	ListenAddress string
	Path          string
	TextfilePath  string

	// DefaultHistogramBuckets are duration buckets in seconds.
	DefaultHistogramBuckets []float64
}

var (
	logLevels     = []string{"trace", "debug", "info", "warn", "error", "fatal"}
	logFormats    = []string{"console", "json"}
	traceExporter = []string{"otlp", "stdout", "none"}
)

// DefaultConfig returns the settings the CLI starts from.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "repop",
		ServiceVersion: "dev",
		Environment:    "local",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			TimeFormat:         "rfc3339",
			SamplingInitial:    100,
			SamplingThereafter: 100,
		},
		Tracing: TracingConfig{
			Exporter:           "stdout",
			Insecure:           true,
			Headers:            map[string]string{},
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			Namespace:               "repop",
			Path:                    "/metrics",
			DefaultHistogramBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
	}
}

// WatchConfig is DefaultConfig with sampled logs and a metrics endpoint on
// listen, for long-running watch mode.
func WatchConfig(listen string) *Config {
	cfg := DefaultConfig()
	cfg.Logging.EnableSampling = true
	cfg.Metrics.ListenAddress = listen
	return cfg
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return fmt.Errorf("service name is required")
	case c.ServiceVersion == "":
		return fmt.Errorf("service version is required")
	case !slices.Contains(logLevels, c.Logging.Level):
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	case !slices.Contains(logFormats, c.Logging.Format):
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	case c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1:
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	case c.Metrics.Enabled && c.Metrics.ListenAddress != "" && c.Metrics.Path == "":
		return fmt.Errorf("metrics path is required when the metrics server is enabled")
	}

	if !c.Tracing.Enabled {
		return nil
	}
	if !slices.Contains(traceExporter, c.Tracing.Exporter) {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter needs an endpoint")
	}
	return nil
}
