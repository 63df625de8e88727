package engine

import (
	"fmt"
	"slices"
)

// allocateVariables creates exactly one variable per graph edge and stores the
// same VarID on both ends of the edge.
func allocateVariables(ref *Refinery, arena *Arena) error {
	for _, uname := range ref.UnitNames() {
		u := ref.Units[uname]
		for _, feed := range u.FeedsOf() {
			id, err := arena.Declare(VarFeed, uname, feedVarName(uname, feed))
			if err != nil {
				return err
			}
			u.Feeds[feed] = id
			if c, ok := ref.Crudes[feed]; ok {
				c.Feeds[uname] = id
			} else if p, ok := ref.Pools[feed]; ok {
				p.Feeds[uname] = id
			} else {
				return NewInternalError("feed without entity", nil).WithEntity(uname).WithDetail("feed", feed)
			}
		}
		for _, feed := range u.FeedsOf() {
			row := u.Yields[feed]
			for _, pool := range sortedKeys(row) {
				u.Outputs[pool] = u.Outputs[pool].AddTerm(u.Feeds[feed], row[pool])
			}
		}
	}

	for _, bname := range ref.BlendNames() {
		b := ref.Blends[bname]
		for _, comp := range b.Components {
			id, err := arena.Declare(VarAllocation, bname, allocVarName(bname, comp))
			if err != nil {
				return err
			}
			b.Allocations[comp] = id
			if p, ok := ref.Pools[comp]; ok {
				p.Allocations[bname] = id
			} else if c, ok := ref.Crudes[comp]; ok {
				c.Allocations[bname] = id
			} else {
				return NewInternalError("component without entity", nil).WithEntity(bname).WithDetail("component", comp)
			}
		}
		id, err := arena.Declare(VarTotal, bname, totalVarName(bname))
		if err != nil {
			return err
		}
		b.Total = id
	}
	return nil
}

// compileCore emits the mandatory relations: one capacity row per unit, one
// availability row per crude, one mass balance per pool and one definition
// per blend.
func compileCore(ref *Refinery) []Relation {
	var out []Relation

	for _, name := range ref.UnitNames() {
		u := ref.Units[name]
		out = append(out, LE(fmt.Sprintf("capacity[%s]", name), SumMap(u.Feeds), Const(u.Capacity)))
	}

	for _, name := range ref.CrudeNames() {
		c := ref.Crudes[name]
		out = append(out, LE(fmt.Sprintf("availability[%s]", name), crudeOutflow(c), Const(c.Availability)))
	}

	for _, name := range ref.PoolNames() {
		out = append(out, LE(fmt.Sprintf("balance[%s]", name), PoolConsumption(ref.Pools[name]), PoolProduction(ref, name)))
	}

	for _, name := range ref.BlendNames() {
		b := ref.Blends[name]
		out = append(out, EQ(fmt.Sprintf("blend[%s]", name), Sum(b.Total), SumMap(b.Allocations)))
	}

	return out
}

// PoolConsumption is the sum of unit feeds and blend allocations drawn from p.
func PoolConsumption(p *Pool) LinExpr {
	return SumMap(p.Feeds).Plus(SumMap(p.Allocations))
}

// PoolProduction is the sum of the output expressions of every producer of pool.
func PoolProduction(ref *Refinery, pool string) LinExpr {
	var expr LinExpr
	p, ok := ref.Pools[pool]
	if !ok {
		return expr
	}
	for _, producer := range p.Producers {
		expr = expr.Plus(ref.Units[producer].Outputs[pool])
	}
	return expr
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
