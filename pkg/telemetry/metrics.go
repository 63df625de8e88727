package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/repop/repop/pkg/engine"
)

// Metrics provides Prometheus metrics for document runs.
type Metrics struct {
	config MetricsConfig

	// Stage metrics
	documentsLoaded  *prometheus.CounterVec
	assemblies       *prometheus.CounterVec
	assemblyDuration prometheus.Histogram
	solves           *prometheus.CounterVec
	solveDuration    *prometheus.HistogramVec

	// Model metrics
	modelVariables *prometheus.GaugeVec
	modelRelations *prometheus.GaugeVec
	objectiveValue *prometheus.GaugeVec

	// Lint metrics
	lintViolations *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	activeSolves prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		documentsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_loaded_total",
				Help:      "Plant documents loaded, by format and outcome",
			},
			[]string{"format", "status"},
		),
		assemblies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assemblies_total",
				Help:      "Model assemblies, by outcome",
			},
			[]string{"status"},
		),
		assemblyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "assembly_duration_seconds",
				Help:      "Duration of model assembly in seconds",
				Buckets:   buckets,
			},
		),
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_total",
				Help:      "Solver runs, by backend and terminal status",
			},
			[]string{"solver", "status"},
		),
		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Duration of solver runs in seconds",
				Buckets:   buckets,
			},
			[]string{"solver"},
		),

		modelVariables: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_variables",
				Help:      "Decision variables in the last assembled model",
			},
			[]string{"document", "kind"},
		),
		modelRelations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_relations",
				Help:      "Relations in the last assembled model",
			},
			[]string{"document", "origin"},
		),
		objectiveValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "objective_value",
				Help:      "Objective value of the last optimal solve",
			},
			[]string{"document", "objective"},
		),

		lintViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lint_violations_total",
				Help:      "Lint policy findings, by policy and severity",
			},
			[]string{"policy", "severity"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeSolves: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_solves",
				Help:      "Solves currently in flight",
			},
		),
	}

	registry.MustRegister(
		m.documentsLoaded,
		m.assemblies,
		m.assemblyDuration,
		m.solves,
		m.solveDuration,
		m.modelVariables,
		m.modelRelations,
		m.objectiveValue,
		m.lintViolations,
		m.errorsByClass,
		m.errorsByCode,
		m.activeSolves,
	)

	return m, nil
}

// Registry returns the metrics registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordDocumentLoaded counts a document load attempt.
func (m *Metrics) RecordDocumentLoaded(format string, err error) {
	if m.documentsLoaded == nil {
		return
	}
	m.documentsLoaded.WithLabelValues(format, outcome(err)).Inc()
}

// RecordAssembly records one assembly attempt and, on success, the model size.
func (m *Metrics) RecordAssembly(document string, stats engine.ModelStats, duration time.Duration, err error) {
	if m.assemblies == nil {
		return
	}
	m.assemblies.WithLabelValues(outcome(err)).Inc()
	m.assemblyDuration.Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.modelVariables.WithLabelValues(document, "flow").Set(float64(stats.Variables - stats.Auxiliaries))
	m.modelVariables.WithLabelValues(document, "auxiliary").Set(float64(stats.Auxiliaries))
	m.modelRelations.WithLabelValues(document, "core").Set(float64(stats.CoreRelations))
	m.modelRelations.WithLabelValues(document, "registered").Set(float64(stats.Relations - stats.CoreRelations))
}

// SolveStarted marks a solve as in flight.
func (m *Metrics) SolveStarted() {
	if m.activeSolves == nil {
		return
	}
	m.activeSolves.Inc()
}

// RecordSolve records a finished solve. Status is the terminal solver status,
// derived from err when the solve did not succeed.
func (m *Metrics) RecordSolve(document, solver string, sol *engine.Solution, duration time.Duration, err error) {
	if m.solves == nil {
		return
	}
	m.activeSolves.Dec()
	m.solveDuration.WithLabelValues(solver).Observe(duration.Seconds())

	status := string(engine.StatusOptimal)
	switch {
	case engine.IsInfeasible(err):
		status = string(engine.StatusInfeasible)
	case engine.IsUnbounded(err):
		status = string(engine.StatusUnbounded)
	case err != nil:
		status = string(engine.StatusError)
	}
	m.solves.WithLabelValues(solver, status).Inc()

	if sol != nil {
		m.objectiveValue.WithLabelValues(document, sol.Objective).Set(sol.Value)
	}
}

// RecordViolation counts a lint finding.
func (m *Metrics) RecordViolation(policy, severity string) {
	if m.lintViolations == nil {
		return
	}
	m.lintViolations.WithLabelValues(policy, severity).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordEngineError classifies err and records it. Errors from outside the
// engine count under the "other" class.
func (m *Metrics) RecordEngineError(err error) {
	if err == nil {
		return
	}
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		m.RecordError(string(ee.Class), ee.Code)
		return
	}
	m.RecordError("other", "")
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// WriteTextfile writes the current metrics in the text exposition format,
// for node_exporter's textfile collector. An empty path uses the configured
// TextfilePath.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil {
		return nil
	}
	if path == "" {
		path = m.config.TextfilePath
	}
	if path == "" {
		return errors.New("no metrics textfile path configured")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics until ctx is done. It is a no-op when
// metrics are disabled or no listen address is configured.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return nil
}
