package telemetry

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/repop/repop/pkg/engine"
)

// Telemetry bundles logging, tracing and metrics for one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Nop returns telemetry that logs nothing, exports nothing and keeps metrics
// in a private registry. Used by tests and library callers that bring none.
func Nop() *Telemetry {
	cfg := DefaultConfig()
	cfg.Logging.Level = "fatal"
	metrics, _ := NewMetrics(cfg.Metrics)
	tracer, _ := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	return &Telemetry{
		Logger:  &Logger{zlog: zerolog.Nop(), config: cfg.Logging},
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes pending spans and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// StartMetricsServer starts the metrics HTTP server if one is configured.
func (t *Telemetry) StartMetricsServer(ctx context.Context) error {
	return t.Metrics.StartMetricsServer(ctx)
}

// InstrumentedContext carries the span, logger and timer of one stage.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented stage with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Span:   trace.SpanFromContext(context.Background()),
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("stage", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the stage, recording success or failure on the span and
// counting engine errors.
func (ic *InstrumentedContext) End(err error) {
	if err != nil {
		if tel := FromTelemetryContext(ic.Ctx); tel != nil {
			tel.Metrics.RecordEngineError(err)
		}
	}
	if ic.Span != nil {
		endSpan(ic.Span, err)
	}
}

// Assemble runs engine.Assemble inside a model.assemble span and records
// assembly metrics.
func Assemble(ctx context.Context, document string, ref *engine.Refinery, reg *engine.Registry, opts engine.AssembleOptions) (*engine.Model, error) {
	objective := opts.Objective
	if objective == "" {
		objective = engine.DefaultObjective
	}
	op := StartOperation(ctx, SpanAssemble, AttrDocument.String(document), AttrObjective.String(objective))

	model, err := engine.Assemble(op.Ctx, ref, reg, opts)

	var stats engine.ModelStats
	if model != nil {
		stats = model.Stats()
		op.Span.SetAttributes(AttrVariables.Int(stats.Variables), AttrRelations.Int(stats.Relations))
	}
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordAssembly(document, stats, op.Timer.Duration(), err)
	}
	op.End(err)
	return model, err
}

// Optimize runs model.Optimize inside a model.solve span and records solve
// metrics.
func Optimize(ctx context.Context, document string, model *engine.Model, s engine.Solver, opts engine.SolveOptions) (*engine.Solution, error) {
	op := StartOperation(ctx, SpanSolve, AttrDocument.String(document), AttrSolver.String(s.Name()))
	tel := FromTelemetryContext(ctx)
	if tel != nil {
		tel.Metrics.SolveStarted()
	}

	sol, err := model.Optimize(op.Ctx, s, opts)

	if sol != nil {
		op.Span.SetAttributes(AttrRunID.String(sol.RunID), AttrStatus.String(string(sol.Status)))
		op.Logger.WithRunID(sol.RunID).Infof("Solved %s: %s = %g", document, sol.Objective, sol.Value)
	}
	if tel != nil {
		tel.Metrics.RecordSolve(document, s.Name(), sol, op.Timer.Duration(), err)
	}
	op.End(err)
	return sol, err
}

func classify(err error) (class, code string, ok bool) {
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		return "", "", false
	}
	return string(ee.Class), ee.Code, true
}
