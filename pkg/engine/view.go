package engine

import "fmt"

// View is the read access builders get during compilation. It exposes the
// handles created by variable allocation and a factory for auxiliary unknowns.
type View struct {
	ref   *Refinery
	arena *Arena
}

// Refinery returns the entity graph. Builders must not mutate it.
func (v *View) Refinery() *Refinery { return v.ref }

// Arena returns the variable arena.
func (v *View) Arena() *Arena { return v.arena }

// NewAuxiliary creates a fresh nonnegative auxiliary variable owned by owner.
func (v *View) NewAuxiliary(owner string) VarID { return v.arena.NewAuxiliary(owner) }

func (v *View) blend(name string) (*Blend, error) {
	b, ok := v.ref.Blends[name]
	if !ok {
		return nil, fmt.Errorf("unknown blend %q", name)
	}
	return b, nil
}

func (v *View) unit(name string) (*Unit, error) {
	u, ok := v.ref.Units[name]
	if !ok {
		return nil, fmt.Errorf("unknown unit %q", name)
	}
	return u, nil
}

// BlendTotal returns the total variable of a blend as an expression.
func (v *View) BlendTotal(blend string) (LinExpr, error) {
	b, err := v.blend(blend)
	if err != nil {
		return LinExpr{}, err
	}
	return Sum(b.Total), nil
}

// Allocation returns the allocation variable of one blend component.
func (v *View) Allocation(blend, component string) (VarID, error) {
	b, err := v.blend(blend)
	if err != nil {
		return NoVar, err
	}
	id, ok := b.Allocations[component]
	if !ok {
		return NoVar, fmt.Errorf("blend %q has no component %q", blend, component)
	}
	return id, nil
}

// Components returns the ordered components of a blend.
func (v *View) Components(blend string) ([]string, error) {
	b, err := v.blend(blend)
	if err != nil {
		return nil, err
	}
	return b.Components, nil
}

// Property returns a numeric property of a pool or crude, 0 when unset.
func (v *View) Property(component, key string) float64 {
	return v.ref.Properties(component)[key]
}

// WeightedProperty builds Σ alloc(c) * property(c, key) over the components of blend.
func (v *View) WeightedProperty(blend, key string) (LinExpr, error) {
	b, err := v.blend(blend)
	if err != nil {
		return LinExpr{}, err
	}
	var expr LinExpr
	for _, comp := range b.Components {
		if val := v.Property(comp, key); val != 0 {
			expr = expr.AddTerm(b.Allocations[comp], val)
		}
	}
	return expr, nil
}

// UnitFeed returns the feed variable of a unit.
func (v *View) UnitFeed(unit, feed string) (VarID, error) {
	u, err := v.unit(unit)
	if err != nil {
		return NoVar, err
	}
	id, ok := u.Feeds[feed]
	if !ok {
		return NoVar, fmt.Errorf("unit %q has no feed %q", unit, feed)
	}
	return id, nil
}

// UnitThroughput returns the sum of all feeds of a unit.
func (v *View) UnitThroughput(unit string) (LinExpr, error) {
	u, err := v.unit(unit)
	if err != nil {
		return LinExpr{}, err
	}
	return SumMap(u.Feeds), nil
}

// UnitOutput returns the derived production expression of unit for pool.
func (v *View) UnitOutput(unit, pool string) (LinExpr, error) {
	u, err := v.unit(unit)
	if err != nil {
		return LinExpr{}, err
	}
	expr, ok := u.Outputs[pool]
	if !ok {
		return LinExpr{}, fmt.Errorf("unit %q does not produce %q", unit, pool)
	}
	return expr, nil
}
