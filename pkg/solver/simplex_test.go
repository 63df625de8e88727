package solver

import (
	"context"
	"math"
	"testing"

	"github.com/repop/repop/pkg/engine"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestSimplex_Maximize(t *testing.T) {
	// max 3x + 2y  s.t. x + y <= 4, x + 3y <= 6, x <= 3
	p := &engine.Program{
		Variables: []string{"x", "y"},
		Rows: []engine.Row{
			{Name: "a", Terms: []engine.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 1}}, Sense: engine.LessEqual, RHS: 4},
			{Name: "b", Terms: []engine.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 3}}, Sense: engine.LessEqual, RHS: 6},
			{Name: "c", Terms: []engine.Term{{Var: 0, Coef: 1}}, Sense: engine.LessEqual, RHS: 3},
		},
		Objective: []float64{3, 2},
		Maximize:  true,
	}

	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Status != engine.StatusOptimal {
		t.Fatalf("Expected optimal, got %s (%s)", res.Status, res.Message)
	}
	if !approx(res.Objective, 11) {
		t.Errorf("Expected objective 11, got %f", res.Objective)
	}
	if !approx(res.Values[0], 3) || !approx(res.Values[1], 1) {
		t.Errorf("Expected x=3 y=1, got %v", res.Values)
	}
}

func TestSimplex_GreaterEqualAndNegativeRHS(t *testing.T) {
	// min x + y  s.t. x >= 2, -y <= -1
	p := &engine.Program{
		Variables: []string{"x", "y"},
		Rows: []engine.Row{
			{Name: "lo", Terms: []engine.Term{{Var: 0, Coef: 1}}, Sense: engine.GreaterEqual, RHS: 2},
			{Name: "neg", Terms: []engine.Term{{Var: 1, Coef: -1}}, Sense: engine.LessEqual, RHS: -1},
		},
		Objective: []float64{1, 1},
	}

	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Status != engine.StatusOptimal {
		t.Fatalf("Expected optimal, got %s (%s)", res.Status, res.Message)
	}
	if !approx(res.Objective, 3) {
		t.Errorf("Expected objective 3, got %f", res.Objective)
	}
}

func TestSimplex_Infeasible(t *testing.T) {
	p := &engine.Program{
		Variables: []string{"x"},
		Rows: []engine.Row{
			{Name: "hi", Terms: []engine.Term{{Var: 0, Coef: 1}}, Sense: engine.LessEqual, RHS: 1},
			{Name: "lo", Terms: []engine.Term{{Var: 0, Coef: 1}}, Sense: engine.GreaterEqual, RHS: 2},
		},
		Objective: []float64{1},
	}

	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Status != engine.StatusInfeasible {
		t.Errorf("Expected infeasible, got %s", res.Status)
	}
}

func TestSimplex_UnconstrainedVariable(t *testing.T) {
	p := &engine.Program{
		Variables: []string{"x", "y"},
		Rows: []engine.Row{
			{Name: "cap", Terms: []engine.Term{{Var: 0, Coef: 1}}, Sense: engine.LessEqual, RHS: 1},
		},
		Objective: []float64{1, 1},
		Maximize:  true,
	}

	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Status != engine.StatusUnbounded {
		t.Errorf("Expected unbounded, got %s", res.Status)
	}
}

func TestSimplex_EmptyRows(t *testing.T) {
	tests := []struct {
		name string
		row  engine.Row
		want engine.Status
	}{
		{"satisfied le", engine.Row{Name: "r", Sense: engine.LessEqual, RHS: 5}, engine.StatusOptimal},
		{"violated le", engine.Row{Name: "r", Sense: engine.LessEqual, RHS: -1}, engine.StatusInfeasible},
		{"satisfied eq", engine.Row{Name: "r", Sense: engine.Equal, RHS: 0}, engine.StatusOptimal},
		{"violated ge", engine.Row{Name: "r", Sense: engine.GreaterEqual, RHS: 2}, engine.StatusInfeasible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &engine.Program{
				Variables: []string{"x"},
				Rows:      []engine.Row{tt.row},
				Objective: []float64{1},
			}
			res, err := NewSimplex().Solve(context.Background(), p)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, res.Status)
			}
			if tt.want == engine.StatusOptimal && res.Values[0] != 0 {
				t.Errorf("Expected x=0, got %f", res.Values[0])
			}
		})
	}
}

func TestSimplex_EmptyProgram(t *testing.T) {
	res, err := NewSimplex().Solve(context.Background(), &engine.Program{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Status != engine.StatusOptimal {
		t.Errorf("Expected optimal, got %s", res.Status)
	}
	if len(res.Values) != 0 {
		t.Errorf("Expected no values, got %v", res.Values)
	}
}

func TestSimplex_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimplex().Solve(ctx, &engine.Program{})
	if err == nil {
		t.Fatal("Expected context error, got nil")
	}
}

func TestSimplex_RedundantEqualities(t *testing.T) {
	// max x + y  s.t. x - y = 0, 2x - 2y = 0, x - y = 0, x + y <= 10
	same := []engine.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: -1}}
	double := []engine.Term{{Var: 0, Coef: 2}, {Var: 1, Coef: -2}}
	p := &engine.Program{
		Variables: []string{"x", "y"},
		Rows: []engine.Row{
			{Name: "ratio", Terms: same, Sense: engine.Equal},
			{Name: "ratio_scaled", Terms: double, Sense: engine.Equal},
			{Name: "ratio_again", Terms: same, Sense: engine.Equal},
			{Name: "cap", Terms: []engine.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 1}}, Sense: engine.LessEqual, RHS: 10},
		},
		Objective: []float64{1, 1},
		Maximize:  true,
	}

	res, err := NewSimplex().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Status != engine.StatusOptimal {
		t.Fatalf("Expected optimal, got %s (%s)", res.Status, res.Message)
	}
	if !approx(res.Objective, 10) {
		t.Errorf("Expected objective 10, got %f", res.Objective)
	}
	if !approx(res.Values[0], 5) || !approx(res.Values[1], 5) {
		t.Errorf("Expected x=5 y=5, got %v", res.Values)
	}
}

func TestBuildStandardForm_EqualitySplit(t *testing.T) {
	p := &engine.Program{
		Variables: []string{"x"},
		Rows: []engine.Row{
			{Name: "fix", Terms: []engine.Term{{Var: 0, Coef: 1}}, Sense: engine.Equal, RHS: 3},
		},
		Objective: []float64{1},
	}

	form, status, _ := buildStandardForm(p)
	if status != "" {
		t.Fatalf("Expected a standard form, got status %s", status)
	}
	if form.rows != 2 || form.cols != 3 {
		t.Fatalf("Expected 2 rows and 3 columns, got %d and %d", form.rows, form.cols)
	}
	if form.a[1] != 1 || form.a[2] != 0 || form.a[4] != 0 || form.a[5] != -1 {
		t.Errorf("Expected one slack and one surplus column, got %v", form.a)
	}
}
