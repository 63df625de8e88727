package config

import (
	"fmt"
	"time"

	"github.com/repop/repop/pkg/engine"
)

// Document is the declarative plant description shared by every input format.
type Document struct {
	// Metadata is informational and carried through to reports.
	Metadata MetadataConfig `json:"metadata" yaml:"metadata,omitempty"`

	// Crudes are purchased raw inputs keyed by name.
	Crudes map[string]CrudeConfig `json:"crudes" yaml:"crudes" validate:"required,min=1,dive,keys,required,endkeys"`

	// Units are processing units keyed by name.
	Units map[string]UnitConfig `json:"units,omitempty" yaml:"units,omitempty" validate:"dive,keys,required,endkeys"`

	// Blends are sold products keyed by name.
	Blends map[string]BlendConfig `json:"blends,omitempty" yaml:"blends,omitempty" validate:"dive,keys,required,endkeys"`

	// PoolProperties assigns numeric properties to pools and crudes.
	PoolProperties map[string]map[string]float64 `json:"pool_properties,omitempty" yaml:"pool_properties,omitempty"`

	// StreamProperties is the legacy spelling of PoolProperties.
	StreamProperties map[string]map[string]float64 `json:"stream_properties,omitempty" yaml:"stream_properties,omitempty"`

	// Scripts declare Starlark constraint kinds keyed by kind name.
	Scripts map[string]ScriptConfig `json:"scripts,omitempty" yaml:"scripts,omitempty" validate:"dive,keys,required,endkeys"`

	// Objective selects a registered objective. Empty means max_profit.
	Objective string `json:"objective,omitempty" yaml:"objective,omitempty"`
}

// MetadataConfig describes a plant document.
type MetadataConfig struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	LastUpdated string `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
}

// CrudeConfig is the document form of a crude.
type CrudeConfig struct {
	Availability float64 `json:"availability" yaml:"availability" validate:"gte=0"`
	Cost         float64 `json:"cost" yaml:"cost"`
}

// UnitConfig is the document form of a processing unit.
type UnitConfig struct {
	Capacity float64 `json:"capacity" yaml:"capacity" validate:"gte=0"`
	Cost     float64 `json:"cost" yaml:"cost"`

	// Yields maps feed name to {output pool -> ratio}.
	Yields map[string]map[string]float64 `json:"yields" yaml:"yields" validate:"required,min=1"`

	Constraints []ConstraintConfig `json:"constraints,omitempty" yaml:"constraints,omitempty" validate:"dive,required"`
}

// BlendConfig is the document form of a blended product.
type BlendConfig struct {
	Price       float64              `json:"price" yaml:"price"`
	Components  []string             `json:"components" yaml:"components" validate:"required,min=1,dive,required"`
	BlendRatios []map[string]float64 `json:"blend_ratios,omitempty" yaml:"blend_ratios,omitempty"`
	Constraints []ConstraintConfig   `json:"constraints,omitempty" yaml:"constraints,omitempty" validate:"dive,required"`
}

// ConstraintConfig is a flat map holding "type" plus the rule's properties.
type ConstraintConfig map[string]any

// Kind returns the constraint type or "" when absent.
func (c ConstraintConfig) Kind() string {
	s, _ := c["type"].(string)
	return s
}

// ScriptConfig declares a constraint kind implemented in Starlark.
type ScriptConfig struct {
	// Scope is "blend" or "unit".
	Scope string `json:"scope" yaml:"scope" validate:"required,oneof=blend unit"`

	// Source must define build(owner, props, plant).
	Source string `json:"source" yaml:"source" validate:"required"`
}

// Loaded is a decoded document plus the files it came from.
type Loaded struct {
	Document    *Document
	SourceFiles []string
	Format      string
	LoadedAt    time.Time
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the document path to the error (e.g., "blends.gasoline.price").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (ve ValidationError) String() string {
	loc := ve.File
	if ve.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", ve.File, ve.Line, ve.Column)
	}
	switch {
	case loc != "" && ve.Path != "":
		return fmt.Sprintf("%s: %s: %s", loc, ve.Path, ve.Message)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, ve.Message)
	case ve.Path != "":
		return fmt.Sprintf("%s: %s", ve.Path, ve.Message)
	}
	return ve.Message
}

// LoadError collects every problem found while loading one document.
type LoadError struct {
	Path   string
	Errors []ValidationError
}

func (e *LoadError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid plant document %s: %s", e.Path, e.Errors[0])
	}
	return fmt.Sprintf("invalid plant document %s: %d errors, first: %s", e.Path, len(e.Errors), e.Errors[0])
}

// Properties returns PoolProperties merged over the legacy StreamProperties.
func (d *Document) Properties() map[string]map[string]float64 {
	if len(d.StreamProperties) == 0 {
		return d.PoolProperties
	}
	merged := make(map[string]map[string]float64, len(d.StreamProperties)+len(d.PoolProperties))
	for name, props := range d.StreamProperties {
		merged[name] = props
	}
	for name, props := range d.PoolProperties {
		merged[name] = props
	}
	return merged
}

// ToInput converts the document into the engine's input form.
func (d *Document) ToInput() engine.Input {
	in := engine.Input{
		Metadata: engine.Metadata{
			Description: d.Metadata.Description,
			Version:     d.Metadata.Version,
			LastUpdated: d.Metadata.LastUpdated,
			Author:      d.Metadata.Author,
		},
		Crudes:         make(map[string]engine.CrudeInput, len(d.Crudes)),
		Units:          make(map[string]engine.UnitInput, len(d.Units)),
		Blends:         make(map[string]engine.BlendInput, len(d.Blends)),
		PoolProperties: d.Properties(),
	}
	for name, c := range d.Crudes {
		in.Crudes[name] = engine.CrudeInput{Availability: c.Availability, Cost: c.Cost}
	}
	for name, u := range d.Units {
		in.Units[name] = engine.UnitInput{
			Capacity:    u.Capacity,
			Cost:        u.Cost,
			Yields:      u.Yields,
			Constraints: toSpecs(u.Constraints),
		}
	}
	for name, b := range d.Blends {
		in.Blends[name] = engine.BlendInput{
			Price:       b.Price,
			Components:  b.Components,
			Ratios:      b.BlendRatios,
			Constraints: toSpecs(b.Constraints),
		}
	}
	return in
}

// toSpecs splits each flat constraint map into kind and properties.
func toSpecs(cfgs []ConstraintConfig) []engine.ConstraintSpec {
	if len(cfgs) == 0 {
		return nil
	}
	specs := make([]engine.ConstraintSpec, len(cfgs))
	for i, c := range cfgs {
		props := make(engine.Properties, len(c))
		for k, v := range c {
			if k != "type" {
				props[k] = v
			}
		}
		specs[i] = engine.ConstraintSpec{Kind: c.Kind(), Properties: props}
	}
	return specs
}
