package engine

import (
	"context"
	"errors"
	"math"
	"testing"
)

type stubSolver struct {
	result *SolverResult
	err    error
	calls  int
}

func (s *stubSolver) Name() string { return "stub" }

func (s *stubSolver) Solve(_ context.Context, p *Program) (*SolverResult, error) {
	s.calls++
	if s.result != nil && s.result.Status == StatusOptimal && s.result.Values == nil {
		s.result.Values = make([]float64, len(p.Variables))
	}
	return s.result, s.err
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.23456789, 1.234568},
		{1e-9, 0},
		{-1e-9, 0},
		{math.Copysign(0, -1), 0},
		{50.0000004, 50},
	}
	for _, tt := range tests {
		got := Round(tt.in, 6)
		if got != tt.want || math.Signbit(got) != math.Signbit(tt.want) {
			t.Errorf("Round(%g): expected %g, got %g", tt.in, tt.want, got)
		}
	}
}

func TestDecimals(t *testing.T) {
	tests := []struct {
		precision int
		want      int
	}{
		{0, DefaultPrecision},
		{WholeUnits, 0},
		{-3, 0},
		{2, 2},
	}
	for _, tt := range tests {
		if got := Decimals(tt.precision, DefaultPrecision); got != tt.want {
			t.Errorf("Decimals(%d): expected %d, got %d", tt.precision, tt.want, got)
		}
	}
}

func TestOptimize_PrecisionOptions(t *testing.T) {
	tests := []struct {
		precision int
		want      float64
	}{
		{0, 100.4},
		{1, 100.4},
		{WholeUnits, 100},
	}
	for _, tt := range tests {
		model := assemble(t, simpleInput(), AssembleOptions{})
		ref := model.Refinery
		values := make([]float64, model.Arena.Len())
		values[ref.Units["cdu"].Feeds["arabian"]] = 100.4
		solver := &stubSolver{result: &SolverResult{Status: StatusOptimal, Values: values}}

		if _, err := model.Optimize(context.Background(), solver, SolveOptions{Precision: tt.precision}); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if got := ref.Crudes["arabian"].Quantity; got != tt.want {
			t.Errorf("Precision %d: expected crude quantity %g, got %g", tt.precision, tt.want, got)
		}
	}
}

func TestOptimize_NonOptimalStatuses(t *testing.T) {
	tests := []struct {
		status Status
		check  func(error) bool
	}{
		{StatusInfeasible, IsInfeasible},
		{StatusUnbounded, IsUnbounded},
		{StatusError, IsSolver},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			model := assemble(t, simpleInput(), AssembleOptions{})
			solver := &stubSolver{result: &SolverResult{Status: tt.status, Values: []float64{1, 1, 1}}}

			sol, err := model.Optimize(context.Background(), solver, SolveOptions{})
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if sol != nil {
				t.Error("Expected no solution")
			}
			if !tt.check(err) {
				t.Errorf("Unexpected error classification: %v", err)
			}
			if model.Solved() {
				t.Error("Expected no back-annotation")
			}
			for _, c := range model.Refinery.Crudes {
				if c.Quantity != 0 {
					t.Errorf("Expected untouched crude quantity, got %f", c.Quantity)
				}
			}
		})
	}
}

func TestOptimize_SolverError(t *testing.T) {
	model := assemble(t, simpleInput(), AssembleOptions{})
	solver := &stubSolver{err: errors.New("backend crashed")}

	_, err := model.Optimize(context.Background(), solver, SolveOptions{})
	if !IsSolver(err) {
		t.Errorf("Expected solver error, got: %v", err)
	}
}

func TestOptimize_WrongValueCount(t *testing.T) {
	model := assemble(t, simpleInput(), AssembleOptions{})
	solver := &stubSolver{result: &SolverResult{Status: StatusOptimal, Values: []float64{1}}}

	if _, err := model.Optimize(context.Background(), solver, SolveOptions{}); err == nil {
		t.Error("Expected error for short value vector")
	}
}

func TestOptimize_BackAnnotation(t *testing.T) {
	model := assemble(t, simpleInput(), AssembleOptions{})
	ref := model.Refinery

	values := make([]float64, model.Arena.Len())
	values[ref.Units["cdu"].Feeds["arabian"]] = 100.0000001
	values[ref.Blends["gasoline"].Allocations["naphtha"]] = 49.9999999
	values[ref.Blends["gasoline"].Total] = 50
	solver := &stubSolver{result: &SolverResult{Status: StatusOptimal, Values: values}}

	sol, err := model.Optimize(context.Background(), solver, SolveOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if ref.Crudes["arabian"].Quantity != 100 {
		t.Errorf("Expected crude quantity 100, got %f", ref.Crudes["arabian"].Quantity)
	}
	if ref.Units["cdu"].Quantity != 100 {
		t.Errorf("Expected unit quantity 100, got %f", ref.Units["cdu"].Quantity)
	}
	if ref.Pools["naphtha"].Quantity != 50 || ref.Pools["diesel"].Quantity != 50 {
		t.Errorf("Expected pool production 50, got naphtha=%f diesel=%f",
			ref.Pools["naphtha"].Quantity, ref.Pools["diesel"].Quantity)
	}
	if ref.Blends["gasoline"].Quantity != 50 {
		t.Errorf("Expected blend quantity 50, got %f", ref.Blends["gasoline"].Quantity)
	}
	if sol.Value != 800 {
		t.Errorf("Expected objective 800, got %f", sol.Value)
	}
	if sol.Values["alloc[gasoline,naphtha]"] != 50 {
		t.Errorf("Expected rounded allocation 50, got %f", sol.Values["alloc[gasoline,naphtha]"])
	}
	if sol.RunID == "" {
		t.Error("Expected run ID")
	}
}
