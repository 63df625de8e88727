// Package telemetry provides logging, tracing and metrics for repop runs.
//
// A run is a short pipeline per plant document: load, lint, assemble, solve.
// Each stage can be wrapped in an instrumented operation that opens an
// OpenTelemetry span, derives a zerolog logger carrying the stage and trace
// IDs, and feeds Prometheus metrics:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
//	model, err := telemetry.Assemble(ctx, "plant.yaml", ref, reg, engine.AssembleOptions{})
//	...
//	sol, err := telemetry.Optimize(ctx, "plant.yaml", model, solver.NewSimplex(), engine.SolveOptions{})
//
// WithContext also installs the logger as the zerolog context logger, so the
// engine's debug output for each stage lands in the same stream.
//
// # Metrics
//
// The CLI is one-shot, so metrics are normally written with WriteTextfile
// after a run. In watch mode a /metrics endpoint is served instead.
//
//   - repop_documents_loaded_total{format,status}
//   - repop_assemblies_total{status}, repop_assembly_duration_seconds
//   - repop_solves_total{solver,status}, repop_solve_duration_seconds{solver}
//   - repop_model_variables{document,kind}, repop_model_relations{document,origin}
//   - repop_objective_value{document,objective}
//   - repop_lint_violations_total{policy,severity}
//   - repop_errors_by_class_total{class}, repop_errors_by_code_total{code}
//
// # Tracing
//
// Spans are exported to stderr (stdout exporter) or to an OTLP gRPC endpoint.
// Engine errors set error.class and error.code on the failing span.
package telemetry
