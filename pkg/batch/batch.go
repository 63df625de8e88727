package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/repop/repop/pkg/config"
	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/policy"
	"github.com/repop/repop/pkg/telemetry"
)

// DefaultParallel is the worker count used when Options.Parallel is not positive.
const DefaultParallel = 4

// Stage names the pipeline step a document stopped at.
type Stage string

const (
	StageLoad     Stage = "load"
	StageScripts  Stage = "scripts"
	StageBuild    Stage = "build"
	StageLint     Stage = "lint"
	StageAssemble Stage = "assemble"
	StageSolve    Stage = "solve"
	StageDone     Stage = "done"
)

// Options configures a Runner.
type Options struct {
	// Objective overrides the document's objective when set.
	Objective string

	// Precision is handed to back-annotation.
	Precision int

	// Parallel bounds the number of documents processed at once.
	Parallel int

	// Strict aborts a document when lint reports a blocking violation.
	Strict bool

	// ScriptTimeout bounds each Starlark call. Zero keeps the evaluator default.
	ScriptTimeout time.Duration
}

// Result is the outcome of one document.
type Result struct {
	Path     string           `json:"path"`
	Stage    Stage            `json:"stage"`
	Format   string           `json:"format,omitempty"`
	Lint     *policy.Result   `json:"lint,omitempty"`
	Solution *engine.Solution `json:"solution,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`

	// Model is the solved model, kept for reporting.
	Model *engine.Model `json:"-"`

	// Err is the failure that stopped the pipeline.
	Err error `json:"-"`
}

// OK reports whether the document was solved.
func (r *Result) OK() bool { return r.Err == nil && r.Stage == StageDone }

// Summary counts outcomes of a batch.
type Summary struct {
	ID        string        `json:"id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Runner solves independent documents concurrently. The registry and the
// lint engine are shared and only read; each document gets its own loader.
type Runner struct {
	registry *engine.Registry
	lint     *policy.Engine
	solver   engine.Solver
	opts     Options

	mu      sync.Mutex
	summary Summary
}

// NewRunner creates a batch runner. lint may be nil to skip linting.
func NewRunner(reg *engine.Registry, lint *policy.Engine, s engine.Solver, opts Options) *Runner {
	if opts.Parallel <= 0 {
		opts.Parallel = DefaultParallel
	}
	return &Runner{
		registry: reg,
		lint:     lint,
		solver:   s,
		opts:     opts,
	}
}

// Run processes every path and returns results in input order. Per-document
// failures are reported on the Result; the returned error is only set when
// ctx is cancelled.
func (r *Runner) Run(ctx context.Context, paths []string) ([]*Result, error) {
	start := time.Now()
	id := uuid.New().String()
	r.mu.Lock()
	r.summary = Summary{ID: id, Total: len(paths)}
	r.mu.Unlock()

	logger := telemetry.FromContext(ctx).WithField("batch_id", id)
	logger.WithField("documents", len(paths)).Info("Batch started")

	results := make([]*Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.RunOne(gctx, path)
			results[i] = res
			r.record(res)
			return nil
		})
	}

	err := g.Wait()

	r.mu.Lock()
	r.summary.Duration = time.Since(start)
	summary := r.summary
	r.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  summary.Duration.String(),
	}).Info("Batch finished")

	if err != nil {
		return results, fmt.Errorf("batch cancelled: %w", err)
	}
	return results, nil
}

// Summary returns the counters of the last Run.
func (r *Runner) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

func (r *Runner) record(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.OK() {
		r.summary.Succeeded++
	} else {
		r.summary.Failed++
	}
}

// RunOne loads, builds, lints, assembles and solves a single document.
func (r *Runner) RunOne(ctx context.Context, path string) *Result {
	start := time.Now()
	res := &Result{Path: path}
	logger := telemetry.FromContext(ctx).WithDocument(path)
	ctx = logger.WithContext(ctx)

	fail := func(stage Stage, err error) *Result {
		res.Stage = stage
		res.Err = err
		res.Error = err.Error()
		res.Duration = time.Since(start)
		logger.WithField("stage", string(stage)).WithError(err).Warn("Document failed")
		return res
	}

	loaded, err := r.load(ctx, path)
	if err != nil {
		return fail(StageLoad, err)
	}
	res.Format = loaded.Format
	doc := loaded.Document

	reg, err := RegistryFor(r.registry, doc, r.opts.ScriptTimeout)
	if err != nil {
		return fail(StageScripts, err)
	}

	ref, err := engine.NewRefinery(doc.ToInput())
	if err != nil {
		return fail(StageBuild, err)
	}

	if r.lint != nil {
		lint, err := r.runLint(ctx, path, ref)
		res.Lint = lint
		if err != nil {
			return fail(StageLint, err)
		}
		if r.opts.Strict && !lint.Allowed {
			return fail(StageLint, fmt.Errorf("lint reported %d blocking violation(s)", blocking(lint)))
		}
	}

	objective := r.opts.Objective
	if objective == "" {
		objective = doc.Objective
	}
	model, err := telemetry.Assemble(ctx, path, ref, reg, engine.AssembleOptions{Objective: objective})
	if err != nil {
		return fail(StageAssemble, err)
	}

	sol, err := telemetry.Optimize(ctx, path, model, r.solver, engine.SolveOptions{Precision: r.opts.Precision})
	if err != nil {
		return fail(StageSolve, err)
	}

	res.Stage = StageDone
	res.Model = model
	res.Solution = sol
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) load(ctx context.Context, path string) (*config.Loaded, error) {
	op := telemetry.StartOperation(ctx, telemetry.SpanLoad, telemetry.AttrDocument.String(path))
	loaded, err := config.NewLoader().Load(op.Ctx, path)

	format, _ := config.DetectFormat(path)
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordDocumentLoaded(format, err)
	}
	op.End(err)
	return loaded, err
}

// RegistryFor returns base, or a clone of it carrying the document's
// scripted kinds when the document declares any.
func RegistryFor(base *engine.Registry, doc *config.Document, timeout time.Duration) (*engine.Registry, error) {
	if len(doc.Scripts) == 0 {
		return base, nil
	}
	reg := base.Clone()
	if err := config.NewStarlarkEvaluator(timeout).RegisterScripts(reg, doc.Scripts); err != nil {
		return nil, fmt.Errorf("failed to register scripts: %w", err)
	}
	return reg, nil
}

func (r *Runner) runLint(ctx context.Context, path string, ref *engine.Refinery) (*policy.Result, error) {
	op := telemetry.StartOperation(ctx, telemetry.SpanLint, telemetry.AttrDocument.String(path))
	result, err := r.lint.Evaluate(op.Ctx, ref)
	if err == nil {
		tel := telemetry.FromTelemetryContext(ctx)
		for _, v := range result.Violations {
			if tel != nil {
				tel.Metrics.RecordViolation(v.Policy, string(v.Severity))
			}
			op.Logger.WithEntity(v.Entity).WithField("policy", v.Policy).Warn(v.Message)
		}
	}
	op.End(err)
	return result, err
}

func blocking(r *policy.Result) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			n++
		}
	}
	return n
}
