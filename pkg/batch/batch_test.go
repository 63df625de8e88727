package batch

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/policy"
	"github.com/repop/repop/pkg/solver"
	"github.com/repop/repop/pkg/telemetry"
)

const plantYAML = `
crudes:
  light: {availability: 100, cost: 1}
units:
  cdu:
    capacity: 80
    cost: 1
    yields:
      light: {naphtha: 1}
blends:
  gasoline:
    price: 10
    components: [naphtha]
`

// Same plant with a scripted unit kind capping the CDU at 50.
const scriptedYAML = `
crudes:
  light: {availability: 100, cost: 1}
units:
  cdu:
    capacity: 80
    cost: 1
    yields:
      light: {naphtha: 1}
    constraints:
      - type: run_cap
        value: 50
blends:
  gasoline:
    price: 10
    components: [naphtha]
scripts:
  run_cap:
    scope: unit
    source: |
      def build(owner, props, plant):
          return [le("throughput:" + owner, props["value"])]
`

const unknownKindYAML = `
crudes:
  light: {availability: 100, cost: 1}
units:
  cdu:
    capacity: 80
    cost: 1
    yields:
      light: {naphtha: 1}
blends:
  gasoline:
    price: 10
    components: [naphtha]
    constraints:
      - type: bogus_kind
`

const badFeedYAML = `
crudes:
  light: {availability: 100, cost: 1}
units:
  cdu:
    capacity: 80
    cost: 1
    yields:
      heavy: {naphtha: 1}
blends:
  gasoline:
    price: 10
    components: [naphtha]
`

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func newRunner(t *testing.T, lint *policy.Engine, opts Options) *Runner {
	t.Helper()
	return NewRunner(engine.NewRegistry(), lint, solver.NewSimplex(), opts)
}

func TestRunOne_Solves(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "plant.yaml", plantYAML)
	res := newRunner(t, nil, Options{}).RunOne(context.Background(), path)

	if !res.OK() {
		t.Fatalf("Expected document to solve, got stage %s: %v", res.Stage, res.Err)
	}
	if res.Format != "yaml" {
		t.Errorf("Expected yaml format, got %s", res.Format)
	}
	if math.Abs(res.Solution.Value-640) > 1e-6 {
		t.Errorf("Expected profit 640, got %g", res.Solution.Value)
	}
	if res.Model == nil || !res.Model.Solved() {
		t.Error("Expected solved model on the result")
	}
}

func TestRunOne_Stages(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		path  string
		stage Stage
		check func(error) bool
	}{
		{
			name:  "missing file",
			path:  filepath.Join(dir, "missing.yaml"),
			stage: StageLoad,
		},
		{
			name:  "unsupported format",
			path:  writeDoc(t, dir, "plant.txt", plantYAML),
			stage: StageLoad,
		},
		{
			name:  "broken script",
			path:  writeDoc(t, dir, "script.yaml", strings.Replace(scriptedYAML, "def build(owner, props, plant):", "def build(owner, props, plant)", 1)),
			stage: StageScripts,
			check: engine.IsRegistry,
		},
		{
			name:  "unknown feed",
			path:  writeDoc(t, dir, "feed.yaml", badFeedYAML),
			stage: StageBuild,
			check: engine.IsValidation,
		},
		{
			name:  "unknown kind",
			path:  writeDoc(t, dir, "kind.yaml", unknownKindYAML),
			stage: StageAssemble,
			check: engine.IsRegistry,
		},
	}

	runner := newRunner(t, nil, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runner.RunOne(context.Background(), tt.path)
			if res.Err == nil {
				t.Fatal("Expected an error")
			}
			if res.Stage != tt.stage {
				t.Errorf("Expected stage %s, got %s", tt.stage, res.Stage)
			}
			if res.Error != res.Err.Error() {
				t.Errorf("Expected Error to mirror Err, got %q", res.Error)
			}
			if tt.check != nil && !tt.check(res.Err) {
				t.Errorf("Unexpected error class: %v", res.Err)
			}
		})
	}
}

func TestRunOne_ObjectiveOverride(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "plant.yaml", plantYAML)
	res := newRunner(t, nil, Options{Objective: "max_fun"}).RunOne(context.Background(), path)
	if res.Stage != StageAssemble || !engine.IsRegistry(res.Err) {
		t.Errorf("Expected registry failure at assembly, got %s: %v", res.Stage, res.Err)
	}
}

func TestRunOne_ScriptsStayPerDocument(t *testing.T) {
	dir := t.TempDir()
	reg := engine.NewRegistry()
	runner := NewRunner(reg, nil, solver.NewSimplex(), Options{})

	res := runner.RunOne(context.Background(), writeDoc(t, dir, "scripted.yaml", scriptedYAML))
	if !res.OK() {
		t.Fatalf("Expected scripted document to solve, got stage %s: %v", res.Stage, res.Err)
	}
	if math.Abs(res.Solution.Value-400) > 1e-6 {
		t.Errorf("Expected capped profit 400, got %g", res.Solution.Value)
	}
	for _, kind := range reg.Kinds(engine.ScopeUnit) {
		if kind == "run_cap" {
			t.Error("Expected scripted kind to stay off the shared registry")
		}
	}
}

func TestRunOne_Strict(t *testing.T) {
	lint, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error creating lint engine, got: %v", err)
	}
	err = lint.AddPolicies(context.Background(), []policy.Policy{{
		Name:     "min-price",
		Severity: policy.SeverityError,
		Enabled:  true,
		Rego: `package repop.lint.min_price

import rego.v1

deny contains violation if {
	some name, blend in input.blends
	blend.price < 50
	violation := {"message": sprintf("blend %s is priced below 50", [name]), "entity": name}
}
`,
	}})
	if err != nil {
		t.Fatalf("Expected no error adding policy, got: %v", err)
	}

	path := writeDoc(t, t.TempDir(), "plant.yaml", plantYAML)

	lenient := newRunner(t, lint, Options{}).RunOne(context.Background(), path)
	if !lenient.OK() {
		t.Fatalf("Expected non-strict run to solve, got %s: %v", lenient.Stage, lenient.Err)
	}
	if lenient.Lint == nil || lenient.Lint.Allowed {
		t.Error("Expected lint result with a blocking violation")
	}

	strict := newRunner(t, lint, Options{Strict: true}).RunOne(context.Background(), path)
	if strict.Stage != StageLint {
		t.Fatalf("Expected strict run to stop at lint, got %s", strict.Stage)
	}
	if !strings.Contains(strict.Error, "1 blocking violation") {
		t.Errorf("Expected blocking count in error, got %q", strict.Error)
	}
}

func TestRun_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeDoc(t, dir, "a.yaml", plantYAML),
		writeDoc(t, dir, "b.yaml", badFeedYAML),
		writeDoc(t, dir, "c.yaml", scriptedYAML),
		writeDoc(t, dir, "d.yaml", plantYAML),
	}

	tel := telemetry.Nop()
	ctx := tel.WithContext(context.Background())
	runner := newRunner(t, nil, Options{Parallel: 2})

	results, err := runner.Run(ctx, paths)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(results) != len(paths) {
		t.Fatalf("Expected %d results, got %d", len(paths), len(results))
	}
	for i, res := range results {
		if res.Path != paths[i] {
			t.Errorf("Expected result %d for %s, got %s", i, paths[i], res.Path)
		}
	}
	if results[1].OK() {
		t.Error("Expected the bad document to fail")
	}

	summary := runner.Summary()
	if summary.Total != 4 || summary.Succeeded != 3 || summary.Failed != 1 {
		t.Errorf("Expected 4 total, 3 succeeded, 1 failed, got %+v", summary)
	}
	if summary.ID == "" {
		t.Error("Expected a batch id")
	}
}

func TestRun_Cancelled(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "plant.yaml", plantYAML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(t, nil, Options{Parallel: 1}).Run(ctx, []string{path, path})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestNewRunner_DefaultParallel(t *testing.T) {
	r := NewRunner(engine.NewRegistry(), nil, solver.NewSimplex(), Options{})
	if r.opts.Parallel != DefaultParallel {
		t.Errorf("Expected %d workers, got %d", DefaultParallel, r.opts.Parallel)
	}
}
