package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// NewRefinery validates in, discovers the implicit pools and assigns levels.
// Every validation failure is reported before any variable exists.
func NewRefinery(in Input) (*Refinery, error) {
	ref := &Refinery{
		Metadata: in.Metadata,
		Crudes:   make(map[string]*Crude, len(in.Crudes)),
		Units:    make(map[string]*Unit, len(in.Units)),
		Pools:    make(map[string]*Pool),
		Blends:   make(map[string]*Blend, len(in.Blends)),
	}

	for _, name := range slices.Sorted(maps.Keys(in.Crudes)) {
		c := in.Crudes[name]
		if err := checkName("crude", name); err != nil {
			return nil, err
		}
		if c.Availability < 0 {
			return nil, NewValidationError("crude availability must be nonnegative", nil).
				WithEntity(name).
				WithDetail("availability", c.Availability)
		}
		ref.Crudes[name] = &Crude{
			Name:         name,
			Availability: c.Availability,
			Cost:         c.Cost,
			Properties:   copyProps(in.PoolProperties[name]),
		}
	}

	for _, name := range slices.Sorted(maps.Keys(in.Units)) {
		u, err := buildUnit(name, in.Units[name])
		if err != nil {
			return nil, err
		}
		ref.Units[name] = u
	}

	if err := ref.discoverPools(in); err != nil {
		return nil, err
	}

	for _, name := range ref.UnitNames() {
		for _, feed := range ref.Units[name].FeedsOf() {
			if ref.IsCrude(feed) {
				continue
			}
			if _, ok := ref.Pools[feed]; !ok {
				return nil, NewValidationError("unit feed is neither a crude nor a pool", nil).
					WithCode(ErrCodeUnknownComponent).
					WithEntity(name).
					WithDetail("feed", feed)
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(in.Blends)) {
		b, err := ref.buildBlend(name, in.Blends[name])
		if err != nil {
			return nil, err
		}
		ref.Blends[name] = b
	}

	ref.AssignLevels()
	return ref, nil
}

func checkName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError(kind+" name must not be empty", nil)
	}
	return nil
}

func copyProps(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	maps.Copy(out, in)
	return out
}

func buildUnit(name string, in UnitInput) (*Unit, error) {
	if err := checkName("unit", name); err != nil {
		return nil, err
	}
	if in.Capacity < 0 {
		return nil, NewValidationError("unit capacity must be nonnegative", nil).
			WithEntity(name).
			WithDetail("capacity", in.Capacity)
	}
	if len(in.Yields) == 0 {
		return nil, NewValidationError("unit has no yields", nil).WithEntity(name)
	}

	yields := make(map[string]map[string]float64, len(in.Yields))
	for feed, outs := range in.Yields {
		row := make(map[string]float64, len(outs))
		for pool, ratio := range outs {
			if ratio < 0 {
				return nil, NewValidationError("yield ratio must be nonnegative", nil).
					WithEntity(name).
					WithDetail("feed", feed).
					WithDetail("output", pool).
					WithDetail("ratio", ratio)
			}
			row[pool] = ratio
		}
		yields[feed] = row
	}

	specs, err := checkSpecs(name, in.Constraints)
	if err != nil {
		return nil, err
	}

	return &Unit{
		Name:        name,
		Capacity:    in.Capacity,
		Cost:        in.Cost,
		Yields:      yields,
		Constraints: specs,
	}, nil
}

// discoverPools creates a pool for every unit output and every blend component
// that is not a declared crude. Units cannot produce a crude.
func (r *Refinery) discoverPools(in Input) error {
	producers := make(map[string][]string)
	for _, uname := range r.UnitNames() {
		for _, out := range r.Units[uname].OutputsOf() {
			if r.IsCrude(out) {
				return NewValidationError("unit output collides with a crude name", nil).
					WithCode(ErrCodeNameCollision).
					WithEntity(uname).
					WithDetail("output", out)
			}
			producers[out] = append(producers[out], uname)
		}
	}

	names := make(map[string]struct{}, len(producers))
	for name := range producers {
		names[name] = struct{}{}
	}
	for _, b := range in.Blends {
		for _, comp := range b.Components {
			if !r.IsCrude(comp) {
				names[comp] = struct{}{}
			}
		}
	}

	for name := range names {
		if err := checkName("pool", name); err != nil {
			return err
		}
		r.Pools[name] = &Pool{
			Name:       name,
			Properties: copyProps(in.PoolProperties[name]),
			Producers:  producers[name],
		}
	}
	return nil
}

func (r *Refinery) buildBlend(name string, in BlendInput) (*Blend, error) {
	if err := checkName("blend", name); err != nil {
		return nil, err
	}
	if len(in.Components) == 0 {
		return nil, NewValidationError("blend has no components", nil).WithEntity(name)
	}

	seen := make(map[string]struct{}, len(in.Components))
	for _, comp := range in.Components {
		if _, dup := seen[comp]; dup {
			return nil, NewValidationError("blend component listed twice", nil).
				WithEntity(name).
				WithDetail("component", comp)
		}
		seen[comp] = struct{}{}
		if _, ok := r.Pools[comp]; !ok && !r.IsCrude(comp) {
			return nil, NewValidationError("blend component is neither a crude nor a pool", nil).
				WithCode(ErrCodeUnknownComponent).
				WithEntity(name).
				WithDetail("component", comp)
		}
	}

	rows := make([]map[string]float64, 0, len(in.Ratios))
	for i, raw := range in.Ratios {
		row, err := normalizeRatioRow(name, i, raw, seen)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	specs, err := checkSpecs(name, in.Constraints)
	if err != nil {
		return nil, err
	}

	return &Blend{
		Name:        name,
		Price:       in.Price,
		Components:  slices.Clone(in.Components),
		Ratios:      rows,
		Constraints: specs,
		Total:       NoVar,
	}, nil
}

// normalizeRatioRow drops nonpositive entries and rejects rows that name a
// foreign component or end up empty.
func normalizeRatioRow(blend string, idx int, raw map[string]float64, comps map[string]struct{}) (map[string]float64, error) {
	row := make(map[string]float64, len(raw))
	for comp, coef := range raw {
		if coef <= 0 {
			continue
		}
		if _, ok := comps[comp]; !ok {
			return nil, NewValidationError("ratio row references a component not in the blend", nil).
				WithCode(ErrCodeInvalidRatio).
				WithEntity(blend).
				WithDetail("row", idx).
				WithDetail("component", comp)
		}
		row[comp] = coef
	}
	if len(row) == 0 {
		return nil, NewValidationError("ratio row has no positive entry", nil).
			WithCode(ErrCodeInvalidRatio).
			WithEntity(blend).
			WithDetail("row", idx)
	}
	return row, nil
}

func checkSpecs(owner string, specs []ConstraintSpec) ([]ConstraintSpec, error) {
	out := make([]ConstraintSpec, 0, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.Kind) == "" {
			return nil, NewValidationError(fmt.Sprintf("constraint #%d has no type", i), nil).
				WithEntity(owner)
		}
		props := make(Properties, len(spec.Properties))
		maps.Copy(props, spec.Properties)
		out = append(out, ConstraintSpec{Kind: spec.Kind, Properties: props})
	}
	return out, nil
}
