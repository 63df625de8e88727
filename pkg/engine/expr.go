package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Term is a coefficient applied to a variable.
type Term struct {
	Var  VarID   `json:"var"`
	Coef float64 `json:"coef"`
}

// LinExpr is an affine expression over arena variables. Values are treated as
// immutable; every operation returns a new expression.
type LinExpr struct {
	Terms    []Term  `json:"terms,omitempty"`
	Constant float64 `json:"constant,omitempty"`
}

// Sum builds the expression v1 + v2 + ... .
func Sum(ids ...VarID) LinExpr {
	terms := make([]Term, 0, len(ids))
	for _, id := range ids {
		terms = append(terms, Term{Var: id, Coef: 1})
	}
	return LinExpr{Terms: terms}
}

// SumMap builds the sum of every variable in m, in key order.
func SumMap(m map[string]VarID) LinExpr {
	ids := make([]VarID, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		ids = append(ids, m[k])
	}
	return Sum(ids...)
}

// Const builds a constant expression.
func Const(c float64) LinExpr { return LinExpr{Constant: c} }

// Plus returns e + o.
func (e LinExpr) Plus(o LinExpr) LinExpr {
	terms := make([]Term, 0, len(e.Terms)+len(o.Terms))
	terms = append(terms, e.Terms...)
	terms = append(terms, o.Terms...)
	return LinExpr{Terms: terms, Constant: e.Constant + o.Constant}
}

// Minus returns e - o.
func (e LinExpr) Minus(o LinExpr) LinExpr { return e.Plus(o.Scale(-1)) }

// Scale returns k * e.
func (e LinExpr) Scale(k float64) LinExpr {
	terms := make([]Term, len(e.Terms))
	for i, t := range e.Terms {
		terms[i] = Term{Var: t.Var, Coef: t.Coef * k}
	}
	return LinExpr{Terms: terms, Constant: e.Constant * k}
}

// AddTerm returns e + coef*id.
func (e LinExpr) AddTerm(id VarID, coef float64) LinExpr {
	return e.Plus(LinExpr{Terms: []Term{{Var: id, Coef: coef}}})
}

// Coefficients merges duplicate variables and drops zero coefficients.
func (e LinExpr) Coefficients() map[VarID]float64 {
	out := make(map[VarID]float64, len(e.Terms))
	for _, t := range e.Terms {
		out[t.Var] += t.Coef
	}
	for id, c := range out {
		if c == 0 {
			delete(out, id)
		}
	}
	return out
}

// Canonical returns the merged terms sorted by variable.
func (e LinExpr) Canonical() []Term {
	coefs := e.Coefficients()
	terms := make([]Term, 0, len(coefs))
	for _, id := range slices.Sorted(maps.Keys(coefs)) {
		terms = append(terms, Term{Var: id, Coef: coefs[id]})
	}
	return terms
}

// IsZero reports whether the expression has no variable terms and no constant.
func (e LinExpr) IsZero() bool {
	return len(e.Coefficients()) == 0 && e.Constant == 0
}

// Eval evaluates the expression at values, indexed by VarID.
func (e LinExpr) Eval(values []float64) float64 {
	total := e.Constant
	for _, t := range e.Terms {
		if int(t.Var) < len(values) {
			total += t.Coef * values[t.Var]
		}
	}
	return total
}

// Format renders the expression using arena names.
func (e LinExpr) Format(a *Arena) string {
	var b strings.Builder
	for i, t := range e.Canonical() {
		name := fmt.Sprintf("x%d", t.Var)
		if v, ok := a.Var(t.Var); ok {
			name = v.Name
		}
		switch {
		case i == 0 && t.Coef < 0:
			b.WriteString("-")
		case i > 0 && t.Coef < 0:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		if c := abs(t.Coef); c != 1 {
			fmt.Fprintf(&b, "%g*", c)
		}
		b.WriteString(name)
	}
	if e.Constant != 0 || b.Len() == 0 {
		if b.Len() > 0 {
			fmt.Fprintf(&b, " + %g", e.Constant)
		} else {
			fmt.Fprintf(&b, "%g", e.Constant)
		}
	}
	return b.String()
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Sense is the comparison of a relation.
type Sense int

const (
	// LessEqual is lhs <= rhs.
	LessEqual Sense = iota
	// GreaterEqual is lhs >= rhs.
	GreaterEqual
	// Equal is lhs == rhs.
	Equal
)

// String returns the operator.
func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "=="
	default:
		return "?"
	}
}

// Relation is one linear constraint lhs (sense) rhs.
type Relation struct {
	Name  string  `json:"name"`
	LHS   LinExpr `json:"lhs"`
	Sense Sense   `json:"sense"`
	RHS   LinExpr `json:"rhs"`
}

// LE builds lhs <= rhs.
func LE(name string, lhs, rhs LinExpr) Relation {
	return Relation{Name: name, LHS: lhs, Sense: LessEqual, RHS: rhs}
}

// GE builds lhs >= rhs.
func GE(name string, lhs, rhs LinExpr) Relation {
	return Relation{Name: name, LHS: lhs, Sense: GreaterEqual, RHS: rhs}
}

// EQ builds lhs == rhs.
func EQ(name string, lhs, rhs LinExpr) Relation {
	return Relation{Name: name, LHS: lhs, Sense: Equal, RHS: rhs}
}

// Normalize moves every variable to the left and every constant to the right,
// returning terms, sense and right-hand side.
func (r Relation) Normalize() ([]Term, Sense, float64) {
	diff := r.LHS.Minus(r.RHS)
	return diff.Canonical(), r.Sense, -diff.Constant
}

// Satisfied checks the relation at values within tol.
func (r Relation) Satisfied(values []float64, tol float64) bool {
	d := r.LHS.Eval(values) - r.RHS.Eval(values)
	switch r.Sense {
	case LessEqual:
		return d <= tol
	case GreaterEqual:
		return d >= -tol
	default:
		return abs(d) <= tol
	}
}
