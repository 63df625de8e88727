package engine

// Revenue is Σ price * total over blends.
func Revenue(v *View) LinExpr {
	var expr LinExpr
	for _, name := range v.ref.BlendNames() {
		b := v.ref.Blends[name]
		expr = expr.AddTerm(b.Total, b.Price)
	}
	return expr
}

// OperatingCost is Σ unit cost * total inbound feed.
func OperatingCost(v *View) LinExpr {
	var expr LinExpr
	for _, name := range v.ref.UnitNames() {
		u := v.ref.Units[name]
		expr = expr.Plus(SumMap(u.Feeds).Scale(u.Cost))
	}
	return expr
}

// CrudeCost is Σ crude cost * total allocation, to units and to blends.
func CrudeCost(v *View) LinExpr {
	var expr LinExpr
	for _, name := range v.ref.CrudeNames() {
		c := v.ref.Crudes[name]
		expr = expr.Plus(crudeOutflow(c).Scale(c.Cost))
	}
	return expr
}

func crudeOutflow(c *Crude) LinExpr {
	return SumMap(c.Feeds).Plus(SumMap(c.Allocations))
}

// MaxProfit maximizes revenue minus operating and crude cost.
func MaxProfit(v *View) (Objective, error) {
	return Objective{
		Name:     DefaultObjective,
		Expr:     Revenue(v).Minus(OperatingCost(v)).Minus(CrudeCost(v)),
		Maximize: true,
	}, nil
}

// MaxProduction maximizes the summed blend totals.
func MaxProduction(v *View) (Objective, error) {
	var expr LinExpr
	for _, name := range v.ref.BlendNames() {
		expr = expr.AddTerm(v.ref.Blends[name].Total, 1)
	}
	return Objective{Name: "max_production", Expr: expr, Maximize: true}, nil
}

// MinCost minimizes operating and crude cost. Only useful together with
// production floors, otherwise the optimum is to do nothing.
func MinCost(v *View) (Objective, error) {
	return Objective{
		Name:     "min_cost",
		Expr:     OperatingCost(v).Plus(CrudeCost(v)),
		Maximize: false,
	}, nil
}
