package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultPrecision is the number of decimals solved values are rounded to.
const DefaultPrecision = 6

// WholeUnits is the Precision that rounds to zero decimals. Zero itself
// selects the default.
const WholeUnits = -1

// Decimals resolves a Precision setting against def.
func Decimals(precision, def int) int {
	switch {
	case precision < 0:
		return 0
	case precision == 0:
		return def
	}
	return precision
}

// Row is one normalized constraint: Σ terms (sense) RHS.
type Row struct {
	Name  string  `json:"name"`
	Terms []Term  `json:"terms"`
	Sense Sense   `json:"sense"`
	RHS   float64 `json:"rhs"`
}

// Program is the complete problem submitted to a solver. Every variable is
// nonnegative.
type Program struct {
	Variables         []string  `json:"variables"`
	Rows              []Row     `json:"rows"`
	Objective         []float64 `json:"objective"`
	ObjectiveConstant float64   `json:"objective_constant"`
	Maximize          bool      `json:"maximize"`
}

// Status is the terminal state reported by a solver.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusError      Status = "error"
)

// SolverResult is what a solver hands back. Values are only meaningful when
// Status is StatusOptimal.
type SolverResult struct {
	Status    Status    `json:"status"`
	Objective float64   `json:"objective"`
	Values    []float64 `json:"values,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Solver is the boundary to an external numerical solver.
type Solver interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Solve blocks until the program is solved or fails.
	Solve(ctx context.Context, p *Program) (*SolverResult, error)
}

// SolveOptions tunes result back-annotation.
type SolveOptions struct {
	// Precision is the number of decimals kept. Zero selects
	// DefaultPrecision; WholeUnits rounds to integers.
	Precision int
}

// Solution is the outcome of a successful solve.
type Solution struct {
	RunID     string             `json:"run_id"`
	Solver    string             `json:"solver"`
	Status    Status             `json:"status"`
	Objective string             `json:"objective"`
	Value     float64            `json:"value"`
	Values    map[string]float64 `json:"values"`
	Stats     ModelStats         `json:"stats"`
	Duration  time.Duration      `json:"duration"`
}

// Round rounds v to precision decimals and folds anything that rounds to zero,
// including negative zero, to exactly 0.
func Round(v float64, precision int) float64 {
	scale := math.Pow10(precision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

// Optimize submits the model to s and, on an optimal status, writes rounded
// quantities back onto every entity. Any other status is returned as a solver
// error and nothing is written.
func (m *Model) Optimize(ctx context.Context, s Solver, opts SolveOptions) (*Solution, error) {
	if s == nil {
		return nil, NewInternalError("no solver configured", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	precision := Decimals(opts.Precision, DefaultPrecision)

	logger := zerolog.Ctx(ctx)
	prog := m.Program()
	start := time.Now()

	logger.Debug().
		Str("solver", s.Name()).
		Int("variables", len(prog.Variables)).
		Int("rows", len(prog.Rows)).
		Msg("Submitting program")

	res, err := s.Solve(ctx, prog)
	duration := time.Since(start)
	if err != nil {
		return nil, NewSolverError("solver failed", err).WithDetail("solver", s.Name())
	}
	if res == nil {
		return nil, NewSolverError("solver returned no result", nil).WithDetail("solver", s.Name())
	}

	switch res.Status {
	case StatusOptimal:
	case StatusInfeasible:
		return nil, NewSolverError("model is infeasible", nil).
			WithCode(ErrCodeInfeasible).
			WithDetail("solver", s.Name()).
			WithDetail("message", res.Message)
	case StatusUnbounded:
		return nil, NewSolverError("objective is unbounded", nil).
			WithCode(ErrCodeUnbounded).
			WithDetail("solver", s.Name()).
			WithDetail("message", res.Message)
	default:
		return nil, NewSolverError(fmt.Sprintf("solver ended with status %q", res.Status), nil).
			WithDetail("solver", s.Name()).
			WithDetail("message", res.Message)
	}

	if len(res.Values) != len(prog.Variables) {
		return nil, NewSolverError("solver returned a value vector of the wrong size", nil).
			WithCode(ErrCodeInternal).
			WithDetail("expected", len(prog.Variables)).
			WithDetail("got", len(res.Values))
	}

	m.backAnnotate(res.Values, precision)

	values := make(map[string]float64, len(prog.Variables))
	for i, name := range prog.Variables {
		values[name] = m.values[i]
	}

	sol := &Solution{
		RunID:     uuid.New().String(),
		Solver:    s.Name(),
		Status:    StatusOptimal,
		Objective: m.Objective.Name,
		Value:     Round(m.Objective.Expr.Eval(m.values), precision),
		Values:    values,
		Stats:     m.Stats(),
		Duration:  duration,
	}

	logger.Debug().
		Str("run_id", sol.RunID).
		Float64("objective", sol.Value).
		Dur("duration", duration).
		Msg("Solve finished")

	return sol, nil
}

// backAnnotate rounds raw values and assigns each entity its quantity in one
// sequential pass.
func (m *Model) backAnnotate(raw []float64, precision int) {
	m.values = make([]float64, len(raw))
	for i, v := range raw {
		m.values[i] = Round(v, precision)
	}

	ref := m.Refinery
	for _, c := range ref.Crudes {
		c.Quantity = Round(m.Eval(crudeOutflow(c)), precision)
	}
	for _, u := range ref.Units {
		u.Quantity = Round(m.Eval(SumMap(u.Feeds)), precision)
	}
	for name, p := range ref.Pools {
		p.Quantity = Round(m.Eval(PoolProduction(ref, name)), precision)
	}
	for _, b := range ref.Blends {
		b.Quantity = m.Value(b.Total)
	}
}
