package engine

import (
	"maps"
	"slices"
)

// Properties is the open property map attached to a constraint spec.
type Properties map[string]any

// ConstraintSpec attaches a registered rule to a blend or unit.
type ConstraintSpec struct {
	// Kind selects the builder in the registry. Matching is case-insensitive.
	Kind string `json:"type" yaml:"type"`

	// Properties are passed verbatim to the builder.
	Properties Properties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Metadata describes the plant document.
type Metadata struct {
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
	Author      string `json:"author,omitempty"`
}

// CrudeInput is the declarative form of a crude.
type CrudeInput struct {
	Availability float64
	Cost         float64
}

// UnitInput is the declarative form of a processing unit.
type UnitInput struct {
	Capacity float64
	Cost     float64

	// Yields maps feed name to {output pool -> yield ratio}.
	Yields map[string]map[string]float64

	Constraints []ConstraintSpec
}

// BlendInput is the declarative form of a blended product.
type BlendInput struct {
	Price      float64
	Components []string

	// Ratios are fixed-composition rows, each {component -> coefficient}.
	Ratios []map[string]float64

	Constraints []ConstraintSpec
}

// Input is the full declarative description of a plant.
type Input struct {
	Metadata Metadata
	Crudes   map[string]CrudeInput
	Units    map[string]UnitInput
	Blends   map[string]BlendInput

	// PoolProperties overrides properties of discovered pools and crudes.
	PoolProperties map[string]map[string]float64
}

// Crude is a purchased raw input.
type Crude struct {
	Name         string             `json:"name"`
	Availability float64            `json:"availability"`
	Cost         float64            `json:"cost"`
	Properties   map[string]float64 `json:"properties,omitempty"`

	// Feeds holds the variables of units consuming this crude, keyed by unit.
	Feeds map[string]VarID `json:"-"`

	// Allocations holds the variables of blends consuming this crude directly.
	Allocations map[string]VarID `json:"-"`

	// Quantity is the total purchased amount after a successful solve.
	Quantity float64 `json:"quantity"`
}

// Unit is a processing step with fixed yields.
type Unit struct {
	Name        string                        `json:"name"`
	Capacity    float64                       `json:"capacity"`
	Cost        float64                       `json:"cost"`
	Yields      map[string]map[string]float64 `json:"yields"`
	Constraints []ConstraintSpec              `json:"constraints,omitempty"`
	Level       int                           `json:"level"`

	// Feeds holds one variable per accepted feed.
	Feeds map[string]VarID `json:"-"`

	// Outputs holds the derived production expression per output pool.
	Outputs map[string]LinExpr `json:"-"`

	// Quantity is the total processed feed after a successful solve.
	Quantity float64 `json:"quantity"`
}

// Pool is an intermediate stream discovered from unit outputs and blend components.
type Pool struct {
	Name       string             `json:"name"`
	Properties map[string]float64 `json:"properties,omitempty"`
	Level      int                `json:"level"`

	// Producers lists the units with this pool in their yield tables.
	Producers []string `json:"producers,omitempty"`

	// Feeds holds the variables of units consuming this pool, keyed by unit.
	Feeds map[string]VarID `json:"-"`

	// Allocations holds the variables of blends consuming this pool, keyed by blend.
	Allocations map[string]VarID `json:"-"`

	// Quantity is the total production after a successful solve.
	Quantity float64 `json:"quantity"`
}

// Blend is a sellable product.
type Blend struct {
	Name        string               `json:"name"`
	Price       float64              `json:"price"`
	Components  []string             `json:"components"`
	Ratios      []map[string]float64 `json:"blend_ratios,omitempty"`
	Constraints []ConstraintSpec     `json:"constraints,omitempty"`

	// Allocations holds one variable per component.
	Allocations map[string]VarID `json:"-"`

	// Total is the blend-total variable, defined as the sum of allocations.
	Total VarID `json:"-"`

	// Quantity is the produced amount after a successful solve.
	Quantity float64 `json:"quantity"`
}

// Refinery is the validated entity graph.
type Refinery struct {
	Metadata Metadata          `json:"metadata"`
	Crudes   map[string]*Crude `json:"crudes"`
	Units    map[string]*Unit  `json:"units"`
	Pools    map[string]*Pool  `json:"pools"`
	Blends   map[string]*Blend `json:"blends"`

	levels *LevelReport
}

// CrudeNames returns crude names in sorted order.
func (r *Refinery) CrudeNames() []string { return slices.Sorted(maps.Keys(r.Crudes)) }

// UnitNames returns unit names in sorted order.
func (r *Refinery) UnitNames() []string { return slices.Sorted(maps.Keys(r.Units)) }

// PoolNames returns pool names in sorted order.
func (r *Refinery) PoolNames() []string { return slices.Sorted(maps.Keys(r.Pools)) }

// BlendNames returns blend names in sorted order.
func (r *Refinery) BlendNames() []string { return slices.Sorted(maps.Keys(r.Blends)) }

// IsCrude reports whether name is a declared crude.
func (r *Refinery) IsCrude(name string) bool {
	_, ok := r.Crudes[name]
	return ok
}

// Properties returns the property map of a pool or crude, or nil.
func (r *Refinery) Properties(name string) map[string]float64 {
	if p, ok := r.Pools[name]; ok {
		return p.Properties
	}
	if c, ok := r.Crudes[name]; ok {
		return c.Properties
	}
	return nil
}

// FeedsOf returns the sorted feed names of a unit.
func (u *Unit) FeedsOf() []string { return slices.Sorted(maps.Keys(u.Yields)) }

// OutputsOf returns the sorted output pool names of a unit.
func (u *Unit) OutputsOf() []string {
	seen := make(map[string]struct{})
	for _, outs := range u.Yields {
		for pool := range outs {
			seen[pool] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func (r *Refinery) resetHandles() {
	for _, c := range r.Crudes {
		c.Feeds = make(map[string]VarID)
		c.Allocations = make(map[string]VarID)
		c.Quantity = 0
	}
	for _, u := range r.Units {
		u.Feeds = make(map[string]VarID)
		u.Outputs = make(map[string]LinExpr)
		u.Quantity = 0
	}
	for _, p := range r.Pools {
		p.Feeds = make(map[string]VarID)
		p.Allocations = make(map[string]VarID)
		p.Quantity = 0
	}
	for _, b := range r.Blends {
		b.Allocations = make(map[string]VarID)
		b.Total = NoVar
		b.Quantity = 0
	}
}
