package engine

import (
	"fmt"
	"maps"
	"slices"
)

// LinearizeRatioRows turns every fixed-composition row of a blend into linear
// equalities. Each row k gets one fresh nonnegative auxiliary a_k, and every
// component c named in the row with coefficient w adds
//
//	alloc(c) == w * a_k
//
// so the named allocations stay in the proportions of the row without any
// division. Components the row does not name are left free.
//
// It is registered as the "blend_ratio" kind and runs for every blend that
// declares rows.
func LinearizeRatioRows(v *View, owner string, _ Properties) ([]Relation, error) {
	b, err := v.blend(owner)
	if err != nil {
		return nil, badProperty(owner, KindBlendRatio, err)
	}

	var out []Relation
	for k, row := range b.Ratios {
		aux := v.NewAuxiliary(owner)
		for _, comp := range slices.Sorted(maps.Keys(row)) {
			alloc, err := v.Allocation(owner, comp)
			if err != nil {
				return nil, badProperty(owner, KindBlendRatio, err)
			}
			name := fmt.Sprintf("ratio[%s#%d,%s]", owner, k, comp)
			out = append(out, EQ(name, Sum(alloc), Sum(aux).Scale(row[comp])))
		}
	}
	return out, nil
}
