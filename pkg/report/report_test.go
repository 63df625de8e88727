package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/policy"
	"github.com/repop/repop/pkg/solver"
)

func splitPlant() engine.Input {
	return engine.Input{
		Metadata: engine.Metadata{Description: "Split naphtha plant", Author: "planning"},
		Crudes:   map[string]engine.CrudeInput{"crude": {Availability: 100, Cost: 1}},
		Units: map[string]engine.UnitInput{
			"cdu": {Capacity: 100, Cost: 1, Yields: map[string]map[string]float64{
				"crude": {"naphtha.light": 0.5, "naphtha.heavy": 0.5},
			}},
		},
		Blends: map[string]engine.BlendInput{
			"gasoline": {Price: 20, Components: []string{"naphtha.light", "naphtha.heavy"}},
		},
	}
}

func assemble(t *testing.T, in engine.Input) *engine.Model {
	t.Helper()
	ref, err := engine.NewRefinery(in)
	if err != nil {
		t.Fatalf("Expected no error building refinery, got: %v", err)
	}
	model, err := engine.Assemble(context.Background(), ref, engine.NewRegistry(), engine.AssembleOptions{})
	if err != nil {
		t.Fatalf("Expected no error assembling, got: %v", err)
	}
	return model
}

func solved(t *testing.T, in engine.Input) *engine.Model {
	t.Helper()
	model := assemble(t, in)
	if _, err := model.Optimize(context.Background(), solver.NewSimplex(), engine.SolveOptions{}); err != nil {
		t.Fatalf("Expected no error solving, got: %v", err)
	}
	return model
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(solved(t, splitPlant()))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	expected := Summary{Sales: 2000, OperatingCost: 100, CrudeCost: 100, Profit: 1800}
	if s != expected {
		t.Errorf("Expected %+v, got %+v", expected, s)
	}
}

func TestSummarize_NotSolved(t *testing.T) {
	if _, err := Summarize(assemble(t, splitPlant())); !errors.Is(err, ErrNotSolved) {
		t.Errorf("Expected ErrNotSolved, got: %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, nil, Options{}); !errors.Is(err, ErrNotSolved) {
		t.Errorf("Expected ErrNotSolved for nil model, got: %v", err)
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, solved(t, splitPlant()), Options{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		" PLANT ",
		"Split naphtha plant",
		" OVERVIEW ",
		"$2,000.00",
		"$1,800.00",
		" CRUDES ",
		" UNIT: CDU ",
		" BLENDING ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	// Both naphtha cuts collapse into one group row in the unit and blending tables.
	if strings.Contains(out, "naphtha.light") {
		t.Errorf("Expected naphtha cuts grouped by prefix, got:\n%s", out)
	}
	if n := strings.Count(out, "\nnaphtha "); n != 2 {
		t.Errorf("Expected naphtha group row in 2 tables, got %d", n)
	}
}

func TestWrite_NoMetadata(t *testing.T) {
	in := splitPlant()
	in.Metadata = engine.Metadata{}
	var buf bytes.Buffer
	if err := Write(&buf, solved(t, in), Options{Currency: "€"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.Contains(buf.String(), " PLANT ") {
		t.Error("Expected no plant table without metadata")
	}
	if !strings.Contains(buf.String(), "€1,800.00") {
		t.Errorf("Expected custom currency, got:\n%s", buf.String())
	}
}

func TestFormatter(t *testing.T) {
	f := newFormatter(Options{})
	tests := []struct {
		in    float64
		qty   string
		money string
	}{
		{in: 1234.5, qty: "1,234.50", money: "$1,234.50"},
		{in: 0.004, qty: "0.00", money: "$0.00"},
		{in: -0.001, qty: "0.00", money: "$0.00"},
		{in: 0.006, qty: "0.01", money: "$0.01"},
	}
	for _, tt := range tests {
		if got := f.qty(tt.in); got != tt.qty {
			t.Errorf("Expected qty(%g) = %s, got %s", tt.in, tt.qty, got)
		}
		if got := f.money(tt.in); got != tt.money {
			t.Errorf("Expected money(%g) = %s, got %s", tt.in, tt.money, got)
		}
	}

	if got := newFormatter(Options{Precision: 4}).qty(1.23456); got != "1.2346" {
		t.Errorf("Expected 4 decimals, got %s", got)
	}
	if got := newFormatter(Options{Precision: engine.WholeUnits}).qty(1.6); got != "2" {
		t.Errorf("Expected whole units, got %s", got)
	}
}

func TestGroupByPrefix(t *testing.T) {
	groups := groupByPrefix([]string{"naphtha.light", "diesel", "naphtha.heavy", "gasoil.a.b"})
	if got := groups["naphtha"]; len(got) != 2 || got[0] != "naphtha.heavy" || got[1] != "naphtha.light" {
		t.Errorf("Expected sorted naphtha members, got %v", got)
	}
	if got := groups["gasoil"]; len(got) != 1 || got[0] != "gasoil.a.b" {
		t.Errorf("Expected split at first dot only, got %v", got)
	}
	if len(groups) != 3 {
		t.Errorf("Expected 3 groups, got %d", len(groups))
	}
}

func TestWriteLevels(t *testing.T) {
	in := splitPlant()
	in.Units["loop_a"] = engine.UnitInput{Capacity: 1, Yields: map[string]map[string]float64{"x": {"y": 1}}}
	in.Units["loop_b"] = engine.UnitInput{Capacity: 1, Yields: map[string]map[string]float64{"y": {"x": 1}}}
	ref, err := engine.NewRefinery(in)
	if err != nil {
		t.Fatalf("Expected no error building refinery, got: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteLevels(&buf, ref.Levels()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "unresolved units placed at level 1: loop_a, loop_b") {
		t.Errorf("Expected unresolved diagnostics, got:\n%s", out)
	}
	if !strings.Contains(out, "cdu loop_a loop_b") {
		t.Errorf("Expected level 1 row with all units, got:\n%s", out)
	}
}

func TestWriteLint(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLint(&buf, &policy.Result{Allowed: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no output for a clean result, got %q", buf.String())
	}

	result := &policy.Result{Violations: []policy.Violation{
		{Policy: "orphan-pool", Entity: "kerosene", Message: "pool kerosene is never produced", Severity: policy.SeverityWarning},
	}}
	if err := WriteLint(&buf, result); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(buf.String(), "warning   orphan-pool  kerosene  pool kerosene is never produced") {
		t.Errorf("Unexpected lint output:\n%s", buf.String())
	}
}
