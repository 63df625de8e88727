package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// AssembleOptions tunes model assembly.
type AssembleOptions struct {
	// Objective names a registered objective. Empty selects DefaultObjective.
	Objective string
}

// Model is an assembled linear program bound to its entity graph.
type Model struct {
	Refinery  *Refinery   `json:"-"`
	Arena     *Arena      `json:"-"`
	Relations []Relation  `json:"relations"`
	Objective Objective   `json:"objective"`
	Levels    LevelReport `json:"levels"`

	coreRelations int
	values        []float64
}

// ModelStats summarizes model size.
type ModelStats struct {
	Variables     int `json:"variables"`
	Auxiliaries   int `json:"auxiliaries"`
	Relations     int `json:"relations"`
	CoreRelations int `json:"core_relations"`
}

// Stats returns the size of the model.
func (m *Model) Stats() ModelStats {
	return ModelStats{
		Variables:     m.Arena.Len(),
		Auxiliaries:   m.Arena.CountKind(VarAuxiliary),
		Relations:     len(m.Relations),
		CoreRelations: m.coreRelations,
	}
}

type compiledSpec struct {
	scope   Scope
	owner   string
	spec    ConstraintSpec
	builder Builder
}

// Assemble compiles ref into a model. Stages run strictly in order: levels,
// variables, core relations, registered relations, objective. Any registry
// failure aborts assembly and no model is returned.
func Assemble(ctx context.Context, ref *Refinery, reg *Registry, opts AssembleOptions) (*Model, error) {
	if ref == nil || reg == nil {
		return nil, NewInternalError("assemble needs a refinery and a registry", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx)

	objName := opts.Objective
	if strings.TrimSpace(objName) == "" {
		objName = DefaultObjective
	}
	objBuilder, err := reg.LookupObjective(objName)
	if err != nil {
		return nil, err
	}

	// Resolve every kind before building anything.
	specs, err := resolveSpecs(ref, reg)
	if err != nil {
		return nil, err
	}

	levels := ref.Levels()
	logger.Debug().
		Int("depth", levels.Depth()).
		Int("unresolved", len(levels.Unresolved)).
		Msg("Levels assigned")

	ref.resetHandles()
	arena := NewArena()
	if err := allocateVariables(ref, arena); err != nil {
		return nil, err
	}
	logger.Debug().Int("variables", arena.Len()).Msg("Variables allocated")

	relations := compileCore(ref)
	core := len(relations)

	view := &View{ref: ref, arena: arena}
	for _, cs := range specs {
		rels, err := cs.builder(view, cs.owner, cs.spec.Properties)
		if err != nil {
			return nil, err
		}
		relations = append(relations, rels...)
	}
	logger.Debug().
		Int("core", core).
		Int("registered", len(relations)-core).
		Msg("Constraints compiled")

	objective, err := objBuilder(view)
	if err != nil {
		return nil, err
	}
	if objective.Name == "" {
		objective.Name = NormalizeKind(objName)
	}

	return &Model{
		Refinery:      ref,
		Arena:         arena,
		Relations:     relations,
		Objective:     objective,
		Levels:        levels,
		coreRelations: core,
	}, nil
}

func resolveSpecs(ref *Refinery, reg *Registry) ([]compiledSpec, error) {
	var out []compiledSpec
	for _, name := range ref.UnitNames() {
		for _, spec := range ref.Units[name].Constraints {
			b, err := reg.Lookup(ScopeUnit, spec.Kind, name)
			if err != nil {
				return nil, err
			}
			out = append(out, compiledSpec{scope: ScopeUnit, owner: name, spec: spec, builder: b})
		}
	}
	for _, name := range ref.BlendNames() {
		blend := ref.Blends[name]
		if len(blend.Ratios) > 0 {
			b, err := reg.Lookup(ScopeBlend, KindBlendRatio, name)
			if err != nil {
				return nil, err
			}
			out = append(out, compiledSpec{scope: ScopeBlend, owner: name, spec: ConstraintSpec{Kind: KindBlendRatio}, builder: b})
		}
		for _, spec := range blend.Constraints {
			b, err := reg.Lookup(ScopeBlend, spec.Kind, name)
			if err != nil {
				return nil, err
			}
			out = append(out, compiledSpec{scope: ScopeBlend, owner: name, spec: spec, builder: b})
		}
	}
	return out, nil
}

// Program lowers the model to the solver-facing form.
func (m *Model) Program() *Program {
	vars := m.Arena.Variables()
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}

	rows := make([]Row, 0, len(m.Relations))
	for _, r := range m.Relations {
		terms, sense, rhs := r.Normalize()
		rows = append(rows, Row{Name: r.Name, Terms: terms, Sense: sense, RHS: rhs})
	}

	obj := make([]float64, len(vars))
	for _, t := range m.Objective.Expr.Canonical() {
		obj[t.Var] = t.Coef
	}

	return &Program{
		Variables:         names,
		Rows:              rows,
		Objective:         obj,
		ObjectiveConstant: m.Objective.Expr.Constant,
		Maximize:          m.Objective.Maximize,
	}
}

// Value returns the rounded solved value of id, 0 before a solve.
func (m *Model) Value(id VarID) float64 {
	if int(id) < 0 || int(id) >= len(m.values) {
		return 0
	}
	return m.values[id]
}

// Eval evaluates expr at the solved values.
func (m *Model) Eval(expr LinExpr) float64 { return expr.Eval(m.values) }

// Solved reports whether values were written back.
func (m *Model) Solved() bool { return m.values != nil }
