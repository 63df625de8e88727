// Package solver provides Solver backends for the engine package.
package solver

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/repop/repop/pkg/engine"
)

// DefaultTolerance is the reduced-cost tolerance handed to the simplex method.
const DefaultTolerance = 1e-10

// Simplex solves programs with gonum's dense simplex implementation.
type Simplex struct {
	// Tolerance overrides DefaultTolerance when positive.
	Tolerance float64
}

// NewSimplex creates a simplex solver with the default tolerance.
func NewSimplex() *Simplex {
	return &Simplex{Tolerance: DefaultTolerance}
}

// Name implements engine.Solver.
func (s *Simplex) Name() string { return "gonum-simplex" }

// standardForm is min c·x subject to A x = b, x >= 0 after slack insertion and
// removal of empty rows and columns. Every row has its own slack column.
type standardForm struct {
	c    []float64
	a    []float64
	b    []float64
	rows int
	cols int

	// columns maps standard-form columns back to program variables; -1 is a slack.
	columns []int
}

// Solve implements engine.Solver. Non-optimal outcomes are reported through
// the result status; only context errors are returned as errors.
func (s *Simplex) Solve(ctx context.Context, p *engine.Program) (*engine.SolverResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	form, status, msg := buildStandardForm(p)
	if status != "" {
		return &engine.SolverResult{Status: status, Message: msg}, nil
	}

	n := len(p.Variables)
	if form.rows == 0 {
		// Every remaining variable has a nonnegative cost; the optimum is zero.
		return s.result(p, make([]float64, n)), nil
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	type outcome struct {
		x   []float64
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("simplex panicked: %v", r)}
			}
		}()
		A := mat.NewDense(form.rows, form.cols, form.a)
		_, x, err := lp.Simplex(form.c, A, form.b, tol, nil)
		done <- outcome{x: x, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if out.err != nil {
		return &engine.SolverResult{Status: statusOf(out.err), Message: out.err.Error()}, nil
	}

	values := make([]float64, n)
	for j, v := range form.columns {
		if v >= 0 {
			values[v] = out.x[j]
		}
	}
	return s.result(p, values), nil
}

func (s *Simplex) result(p *engine.Program, values []float64) *engine.SolverResult {
	obj := p.ObjectiveConstant
	for j, c := range p.Objective {
		obj += c * values[j]
	}
	return &engine.SolverResult{Status: engine.StatusOptimal, Objective: obj, Values: values}
}

func statusOf(err error) engine.Status {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return engine.StatusInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return engine.StatusUnbounded
	default:
		return engine.StatusError
	}
}

// buildStandardForm converts p. A non-empty status means the program was
// decided without running the simplex method.
func buildStandardForm(p *engine.Program) (*standardForm, engine.Status, string) {
	n := len(p.Variables)

	cost := make([]float64, n)
	for j := 0; j < n && j < len(p.Objective); j++ {
		cost[j] = p.Objective[j]
		if p.Maximize {
			cost[j] = -cost[j]
		}
	}

	var kept []engine.Row
	used := make([]bool, n)
	for _, row := range p.Rows {
		if len(row.Terms) == 0 {
			if !trivially(row) {
				return nil, engine.StatusInfeasible, fmt.Sprintf("row %s is 0 %s %g", row.Name, row.Sense, row.RHS)
			}
			continue
		}
		for _, t := range row.Terms {
			if int(t.Var) < 0 || int(t.Var) >= n {
				return nil, engine.StatusError, fmt.Sprintf("row %s references unknown variable %d", row.Name, t.Var)
			}
			used[t.Var] = true
		}
		kept = append(kept, row)
	}

	form := &standardForm{}
	index := make([]int, n)
	for j := 0; j < n; j++ {
		index[j] = -1
		if !used[j] {
			if cost[j] < 0 {
				return nil, engine.StatusUnbounded, fmt.Sprintf("variable %s is unconstrained", p.Variables[j])
			}
			continue
		}
		index[j] = len(form.columns)
		form.columns = append(form.columns, j)
		form.c = append(form.c, cost[j])
	}
	// Each equality becomes a <= and a >= row so every row owns a slack
	// column. A then always has full row rank, even when a builder repeats an
	// equality or emits proportional ones.
	var rows []engine.Row
	for _, row := range kept {
		if row.Sense != engine.Equal {
			rows = append(rows, row)
			continue
		}
		le, ge := row, row
		le.Sense, ge.Sense = engine.LessEqual, engine.GreaterEqual
		rows = append(rows, le, ge)
	}

	slack := len(form.columns)
	for range rows {
		form.columns = append(form.columns, -1)
		form.c = append(form.c, 0)
	}

	form.rows = len(rows)
	form.cols = len(form.columns)
	form.a = make([]float64, form.rows*form.cols)
	form.b = make([]float64, form.rows)

	for i, row := range rows {
		sign := 1.0
		if row.RHS < 0 {
			sign = -1
		}
		for _, t := range row.Terms {
			form.a[i*form.cols+index[t.Var]] += sign * t.Coef
		}
		if row.Sense == engine.LessEqual {
			form.a[i*form.cols+slack+i] = sign
		} else {
			form.a[i*form.cols+slack+i] = -sign
		}
		form.b[i] = sign * row.RHS
	}

	return form, "", ""
}

func trivially(row engine.Row) bool {
	switch row.Sense {
	case engine.LessEqual:
		return 0 <= row.RHS
	case engine.GreaterEqual:
		return 0 >= row.RHS
	default:
		return row.RHS == 0
	}
}
