package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclFile is the block layout of an HCL plant document.
type hclFile struct {
	Metadata  *hclMetadata `hcl:"metadata,block"`
	Crudes    []*hclCrude  `hcl:"crude,block"`
	Units     []*hclUnit   `hcl:"unit,block"`
	Blends    []*hclBlend  `hcl:"blend,block"`
	Pools     []*hclPool   `hcl:"pool,block"`
	Scripts   []*hclScript `hcl:"script,block"`
	Objective *string      `hcl:"objective,optional"`
}

type hclMetadata struct {
	Description *string `hcl:"description,optional"`
	Version     *string `hcl:"version,optional"`
	LastUpdated *string `hcl:"last_updated,optional"`
	Author      *string `hcl:"author,optional"`
}

type hclCrude struct {
	Name         string   `hcl:"name,label"`
	Availability float64  `hcl:"availability"`
	Cost         *float64 `hcl:"cost,optional"`
}

type hclUnit struct {
	Name        string                        `hcl:"name,label"`
	Capacity    float64                       `hcl:"capacity"`
	Cost        *float64                      `hcl:"cost,optional"`
	Yields      map[string]map[string]float64 `hcl:"yields"`
	Constraints []*hclConstraint              `hcl:"constraint,block"`
}

type hclBlend struct {
	Name        string               `hcl:"name,label"`
	Price       float64              `hcl:"price"`
	Components  []string             `hcl:"components"`
	BlendRatios []map[string]float64 `hcl:"blend_ratios,optional"`
	Constraints []*hclConstraint     `hcl:"constraint,block"`
}

// hclConstraint keeps its body so arbitrary properties can be read as attributes.
type hclConstraint struct {
	Kind string   `hcl:"kind,label"`
	Body hcl.Body `hcl:",remain"`
}

type hclPool struct {
	Name       string             `hcl:"name,label"`
	Properties map[string]float64 `hcl:"properties"`
}

type hclScript struct {
	Kind   string `hcl:"kind,label"`
	Scope  string `hcl:"scope"`
	Source string `hcl:"source"`
}

// HCLParser decodes plant documents written in HCL.
type HCLParser struct {
	parser *hclparse.Parser
}

// NewHCLParser creates a new HCL parser.
func NewHCLParser() *HCLParser {
	return &HCLParser{parser: hclparse.NewParser()}
}

// ParseFile parses and decodes one HCL file.
func (hp *HCLParser) ParseFile(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, diags := hp.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, &LoadError{Path: path, Errors: diagErrors(diags)}
	}
	return hp.decode(file.Body, path)
}

// ParseInline parses HCL content held in memory.
func (hp *HCLParser) ParseInline(ctx context.Context, content []byte, filename string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, diags := hp.parser.ParseHCL(content, filename)
	if diags.HasErrors() {
		return nil, &LoadError{Path: filename, Errors: diagErrors(diags)}
	}
	return hp.decode(file.Body, filename)
}

func (hp *HCLParser) decode(body hcl.Body, path string) (*Document, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(body, nil, &parsed); diags.HasErrors() {
		return nil, &LoadError{Path: path, Errors: diagErrors(diags)}
	}

	doc := &Document{
		Crudes:         make(map[string]CrudeConfig, len(parsed.Crudes)),
		Units:          make(map[string]UnitConfig, len(parsed.Units)),
		Blends:         make(map[string]BlendConfig, len(parsed.Blends)),
		PoolProperties: make(map[string]map[string]float64, len(parsed.Pools)),
	}
	var errs []ValidationError
	dup := func(kind, name string) {
		errs = append(errs, ValidationError{File: path, Path: kind + "." + name, Message: fmt.Sprintf("duplicate %s block %q", kind, name)})
	}

	if m := parsed.Metadata; m != nil {
		doc.Metadata = MetadataConfig{
			Description: deref(m.Description),
			Version:     deref(m.Version),
			LastUpdated: deref(m.LastUpdated),
			Author:      deref(m.Author),
		}
	}
	doc.Objective = deref(parsed.Objective)

	for _, c := range parsed.Crudes {
		if _, exists := doc.Crudes[c.Name]; exists {
			dup("crude", c.Name)
			continue
		}
		doc.Crudes[c.Name] = CrudeConfig{Availability: c.Availability, Cost: deref(c.Cost)}
	}

	for _, u := range parsed.Units {
		if _, exists := doc.Units[u.Name]; exists {
			dup("unit", u.Name)
			continue
		}
		constraints, cerrs := decodeConstraints(u.Constraints)
		errs = append(errs, cerrs...)
		doc.Units[u.Name] = UnitConfig{
			Capacity:    u.Capacity,
			Cost:        deref(u.Cost),
			Yields:      u.Yields,
			Constraints: constraints,
		}
	}

	for _, b := range parsed.Blends {
		if _, exists := doc.Blends[b.Name]; exists {
			dup("blend", b.Name)
			continue
		}
		constraints, cerrs := decodeConstraints(b.Constraints)
		errs = append(errs, cerrs...)
		doc.Blends[b.Name] = BlendConfig{
			Price:       b.Price,
			Components:  b.Components,
			BlendRatios: b.BlendRatios,
			Constraints: constraints,
		}
	}

	for _, p := range parsed.Pools {
		if _, exists := doc.PoolProperties[p.Name]; exists {
			dup("pool", p.Name)
			continue
		}
		doc.PoolProperties[p.Name] = p.Properties
	}

	if len(parsed.Scripts) > 0 {
		doc.Scripts = make(map[string]ScriptConfig, len(parsed.Scripts))
		for _, s := range parsed.Scripts {
			if _, exists := doc.Scripts[s.Kind]; exists {
				dup("script", s.Kind)
				continue
			}
			doc.Scripts[s.Kind] = ScriptConfig{Scope: s.Scope, Source: s.Source}
		}
	}

	if len(errs) > 0 {
		return nil, &LoadError{Path: path, Errors: errs}
	}
	return doc, nil
}

// decodeConstraints turns each constraint block into a flat property map.
func decodeConstraints(blocks []*hclConstraint) ([]ConstraintConfig, []ValidationError) {
	if len(blocks) == 0 {
		return nil, nil
	}

	var errs []ValidationError
	out := make([]ConstraintConfig, 0, len(blocks))
	for _, block := range blocks {
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			errs = append(errs, diagErrors(diags)...)
			continue
		}

		cfg := ConstraintConfig{"type": block.Kind}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				errs = append(errs, diagErrors(diags)...)
				continue
			}
			native, err := ctyToNative(val)
			if err != nil {
				errs = append(errs, ValidationError{
					File:    attr.Range.Filename,
					Line:    attr.Range.Start.Line,
					Column:  attr.Range.Start.Column,
					Path:    block.Kind + "." + name,
					Message: err.Error(),
				})
				continue
			}
			cfg[name] = native
		}
		out = append(out, cfg)
	}
	return out, errs
}

// ctyToNative recursively converts a cty.Value to its most natural Go counterpart.
// Numbers become float64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, val := it.Element()
			native, err := ctyToNative(val)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		goMap := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, val := it.Element()
			native, err := ctyToNative(val)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			goMap[key.AsString()] = native
		}
		return goMap, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

func diagErrors(diags hcl.Diagnostics) []ValidationError {
	var out []ValidationError
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		ve := ValidationError{Message: d.Summary}
		if d.Detail != "" {
			ve.Message = d.Summary + ": " + d.Detail
		}
		if d.Subject != nil {
			ve.File = d.Subject.Filename
			ve.Line = d.Subject.Start.Line
			ve.Column = d.Subject.Start.Column
		}
		out = append(out, ve)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
