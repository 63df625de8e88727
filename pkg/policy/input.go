package policy

import (
	"slices"

	"github.com/repop/repop/pkg/engine"
)

// NewInput derives the policy input from a built network. Consumers are taken
// from yield tables and blend components, so no model has to be assembled.
func NewInput(ref *engine.Refinery) *Input {
	consumers := make(map[string][]string)
	for _, name := range ref.UnitNames() {
		for _, feed := range ref.Units[name].FeedsOf() {
			consumers[feed] = append(consumers[feed], name)
		}
	}
	for _, name := range ref.BlendNames() {
		for _, comp := range ref.Blends[name].Components {
			consumers[comp] = append(consumers[comp], name)
		}
	}

	in := &Input{
		Crudes: make(map[string]CrudeFacts, len(ref.Crudes)),
		Units:  make(map[string]UnitFacts, len(ref.Units)),
		Pools:  make(map[string]PoolFacts, len(ref.Pools)),
		Blends: make(map[string]BlendFacts, len(ref.Blends)),
	}

	for name, c := range ref.Crudes {
		in.Crudes[name] = CrudeFacts{
			Availability: c.Availability,
			Cost:         c.Cost,
			Consumers:    nonNil(consumers[name]),
		}
	}
	for name, u := range ref.Units {
		in.Units[name] = UnitFacts{
			Capacity:    u.Capacity,
			Cost:        u.Cost,
			Level:       u.Level,
			Feeds:       u.FeedsOf(),
			Outputs:     u.OutputsOf(),
			Constraints: kinds(u.Constraints),
		}
	}
	for name, p := range ref.Pools {
		props := p.Properties
		if props == nil {
			props = map[string]float64{}
		}
		in.Pools[name] = PoolFacts{
			Level:      p.Level,
			Producers:  nonNil(p.Producers),
			Consumers:  nonNil(consumers[name]),
			Properties: props,
		}
	}
	for name, b := range ref.Blends {
		ratios := b.Ratios
		if ratios == nil {
			ratios = []map[string]float64{}
		}
		in.Blends[name] = BlendFacts{
			Price:       b.Price,
			Components:  b.Components,
			Ratios:      ratios,
			Constraints: kinds(b.Constraints),
		}
	}

	report := ref.Levels()
	in.Levels = LevelFacts{
		Unresolved: nonNil(report.Unresolved),
		Orphans:    nonNil(report.Orphans),
		Passes:     report.Passes,
	}
	return in
}

func kinds(specs []engine.ConstraintSpec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, engine.NormalizeKind(s.Kind))
	}
	return out
}

// nonNil keeps empty lists as [] rather than null in the policy input.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
