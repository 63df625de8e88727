package engine

import "fmt"

// Built-in constraint kinds.
const (
	KindMinProperty   = "min_property"
	KindMaxProperty   = "max_property"
	KindMinRON        = "min_ron"
	KindMaxRVP        = "max_rvp"
	KindMaxSulphur    = "max_sulphur"
	KindMinRatio      = "min_ratio"
	KindMaxRatio      = "max_ratio"
	KindMinProduction = "min_production"
	KindMaxProduction = "max_production"
	KindBlendRatio    = "blend_ratio"

	KindMinThroughput = "min_throughput"
	KindMaxThroughput = "max_throughput"
	KindMaxFeed       = "max_feed"
	KindMinOutput     = "min_output"
)

func registerBuiltins(r *Registry) {
	blend := map[string]Builder{
		KindMinProperty:   propertyThreshold(KindMinProperty, "", GreaterEqual),
		KindMaxProperty:   propertyThreshold(KindMaxProperty, "", LessEqual),
		KindMinRON:        propertyThreshold(KindMinRON, "RON", GreaterEqual),
		KindMaxRVP:        propertyThreshold(KindMaxRVP, "RVP", LessEqual),
		KindMaxSulphur:    propertyThreshold(KindMaxSulphur, "sulphur", LessEqual),
		KindMinRatio:      productionRatio(KindMinRatio, GreaterEqual),
		KindMaxRatio:      productionRatio(KindMaxRatio, LessEqual),
		KindMinProduction: absoluteProduction(KindMinProduction, GreaterEqual),
		KindMaxProduction: absoluteProduction(KindMaxProduction, LessEqual),
		KindBlendRatio:    LinearizeRatioRows,
	}
	unit := map[string]Builder{
		KindMinThroughput: throughputLimit(KindMinThroughput, GreaterEqual),
		KindMaxThroughput: throughputLimit(KindMaxThroughput, LessEqual),
		KindMaxFeed:       feedLimit,
		KindMinOutput:     outputFloor,
	}
	for kind, b := range blend {
		_ = r.Register(ScopeBlend, kind, b)
	}
	for kind, b := range unit {
		_ = r.Register(ScopeUnit, kind, b)
	}
	_ = r.RegisterObjective(DefaultObjective, MaxProfit)
	_ = r.RegisterObjective("max_production", MaxProduction)
	_ = r.RegisterObjective("min_cost", MinCost)
}

func relate(name string, lhs LinExpr, sense Sense, rhs LinExpr) Relation {
	return Relation{Name: name, LHS: lhs, Sense: sense, RHS: rhs}
}

// propertyThreshold builds Σ alloc*prop (sense) value * total. An empty fixed
// property means the property name is read from the "property" key.
func propertyThreshold(kind, fixed string, sense Sense) Builder {
	return func(v *View, owner string, props Properties) ([]Relation, error) {
		prop := fixed
		if prop == "" {
			p, err := props.String("property")
			if err != nil {
				return nil, badProperty(owner, kind, err)
			}
			prop = p
		}
		value, err := props.Float("value")
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		weighted, err := v.WeightedProperty(owner, prop)
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		total, err := v.BlendTotal(owner)
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		name := fmt.Sprintf("%s[%s,%s]", kind, owner, prop)
		return []Relation{relate(name, weighted, sense, total.Scale(value))}, nil
	}
}

// productionRatio builds total(owner) (sense) value * total(reference).
func productionRatio(kind string, sense Sense) Builder {
	return func(v *View, owner string, props Properties) ([]Relation, error) {
		factor, err := props.Float("value")
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		reference, err := props.String("reference")
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		total, err := v.BlendTotal(owner)
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		refTotal, err := v.BlendTotal(reference)
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		name := fmt.Sprintf("%s[%s,%s]", kind, owner, reference)
		return []Relation{relate(name, total, sense, refTotal.Scale(factor))}, nil
	}
}

// absoluteProduction builds total(owner) (sense) value.
func absoluteProduction(kind string, sense Sense) Builder {
	return func(v *View, owner string, props Properties) ([]Relation, error) {
		value, err := props.Float("value")
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		total, err := v.BlendTotal(owner)
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		name := fmt.Sprintf("%s[%s]", kind, owner)
		return []Relation{relate(name, total, sense, Const(value))}, nil
	}
}

func throughputLimit(kind string, sense Sense) Builder {
	return func(v *View, owner string, props Properties) ([]Relation, error) {
		value, err := props.Float("value")
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		throughput, err := v.UnitThroughput(owner)
		if err != nil {
			return nil, badProperty(owner, kind, err)
		}
		name := fmt.Sprintf("%s[%s]", kind, owner)
		return []Relation{relate(name, throughput, sense, Const(value))}, nil
	}
}

func feedLimit(v *View, owner string, props Properties) ([]Relation, error) {
	feed, err := props.String("feed")
	if err != nil {
		return nil, badProperty(owner, KindMaxFeed, err)
	}
	value, err := props.Float("value")
	if err != nil {
		return nil, badProperty(owner, KindMaxFeed, err)
	}
	id, err := v.UnitFeed(owner, feed)
	if err != nil {
		return nil, badProperty(owner, KindMaxFeed, err)
	}
	name := fmt.Sprintf("%s[%s,%s]", KindMaxFeed, owner, feed)
	return []Relation{LE(name, Sum(id), Const(value))}, nil
}

func outputFloor(v *View, owner string, props Properties) ([]Relation, error) {
	pool, err := props.String("pool")
	if err != nil {
		return nil, badProperty(owner, KindMinOutput, err)
	}
	value, err := props.Float("value")
	if err != nil {
		return nil, badProperty(owner, KindMinOutput, err)
	}
	out, err := v.UnitOutput(owner, pool)
	if err != nil {
		return nil, badProperty(owner, KindMinOutput, err)
	}
	name := fmt.Sprintf("%s[%s,%s]", KindMinOutput, owner, pool)
	return []Relation{GE(name, out, Const(value))}, nil
}
