package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// Span names, one per pipeline stage.
const (
	SpanLoad     = "document.load"
	SpanLint     = "network.lint"
	SpanAssemble = "model.assemble"
	SpanSolve    = "model.solve"
)

// Attribute keys set on stage spans.
var (
	AttrDocument  = attribute.Key("repop.document")
	AttrObjective = attribute.Key("repop.objective")
	AttrSolver    = attribute.Key("repop.solver")
	AttrRunID     = attribute.Key("repop.run_id")
	AttrStatus    = attribute.Key("repop.status")

	AttrVariables = attribute.Key("model.variables")
	AttrRelations = attribute.Key("model.relations")

	AttrErrorClass = attribute.Key("error.class")
	AttrErrorCode  = attribute.Key("error.code")
)

// Tracer owns the span provider of a run.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds the provider. With tracing disabled spans are still
// created, so stage code never checks, but nothing is exported.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion, environment string) (*Tracer, error) {
	var opts []sdktrace.TracerProviderOption

	if cfg.Enabled {
		res, err := resource.New(context.Background(), resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			attribute.String("environment", environment),
		))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace resource: %w", err)
		}
		opts = append(opts,
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		)

		exporter, err := newExporter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		if exporter != nil {
			opts = append(opts, sdktrace.WithBatcher(exporter,
				sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
				sdktrace.WithExportTimeout(cfg.ExportTimeout),
			))
		}
	}

	provider := sdktrace.NewTracerProvider(opts...)
	if cfg.Enabled {
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
	}
	return &Tracer{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// newExporter returns nil for the "none" exporter. Stdout spans go to stderr
// so they never mix with reports.
func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "none":
		return nil, nil
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	}
	return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
}

func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// endSpan sets the span status from err and ends it. Engine errors add their
// class and code.
func endSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		span.End()
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if class, code, ok := classify(err); ok {
		span.SetAttributes(AttrErrorClass.String(class), AttrErrorCode.String(code))
	}
	span.End()
}
