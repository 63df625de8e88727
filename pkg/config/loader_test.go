package config

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/solver"
)

const plantYAML = `
metadata:
  description: Test plant
  author: ops
crudes:
  arabian: {availability: 100, cost: 1}
units:
  cdu:
    capacity: 100
    cost: 1
    yields:
      arabian: {naphtha: 0.5, diesel: 0.5}
blends:
  gasoline:
    price: 20
    components: [naphtha]
    constraints:
      - type: min_ron
        value: 90
stream_properties:
  naphtha: {RON: 92}
`

const plantCUE = `
crudes: arabian: {availability: 100, cost: 1}
units: cdu: {
	capacity: 100
	cost:     1
	yields: arabian: {naphtha: 0.5, diesel: 0.5}
}
blends: gasoline: {
	price: 20
	components: ["naphtha"]
	constraints: [{type: "min_production", value: 10}]
}
pool_properties: naphtha: RON: 92
objective: "max_profit"
`

const plantHCL = `
metadata {
  description = "Test plant"
}

crude "arabian" {
  availability = 100
  cost         = 1
}

unit "cdu" {
  capacity = 100
  cost     = 1
  yields   = { arabian = { naphtha = 0.5, diesel = 0.5 } }
}

blend "gasoline" {
  price        = 20
  components   = ["naphtha"]
  blend_ratios = [{ naphtha = 1 }]

  constraint "min_ron" {
    value = 90
  }
}

pool "naphtha" {
  properties = { RON = 92 }
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"plant.yaml", FormatYAML, false},
		{"plant.YML", FormatYAML, false},
		{"plant.json", FormatYAML, false},
		{"plant.cue", FormatCUE, false},
		{"plant.hcl", FormatHCL, false},
		{"plant.toml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got: %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	if got, _ := DetectFormat(t.TempDir()); got != FormatCUE {
		t.Errorf("Expected directories to load as CUE, got %q", got)
	}
}

func TestLoader_YAML(t *testing.T) {
	path := writeFile(t, "plant.yaml", plantYAML)

	loaded, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if loaded.Format != FormatYAML {
		t.Errorf("Expected yaml format, got %s", loaded.Format)
	}

	doc := loaded.Document
	if doc.Metadata.Author != "ops" {
		t.Errorf("Expected author ops, got %q", doc.Metadata.Author)
	}

	in := doc.ToInput()
	if in.PoolProperties["naphtha"]["RON"] != 92 {
		t.Errorf("Expected legacy stream_properties to be read, got %v", in.PoolProperties)
	}
	specs := in.Blends["gasoline"].Constraints
	if len(specs) != 1 || specs[0].Kind != "min_ron" {
		t.Fatalf("Expected one min_ron spec, got %+v", specs)
	}
	if v, err := specs[0].Properties.Float("value"); err != nil || v != 90 {
		t.Errorf("Expected value 90, got %v (%v)", v, err)
	}
	if _, ok := specs[0].Properties["type"]; ok {
		t.Error("Expected type to be stripped from properties")
	}
}

func TestLoader_CUE(t *testing.T) {
	path := writeFile(t, "plant.cue", plantCUE)

	loaded, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	doc := loaded.Document
	if doc.Objective != "max_profit" {
		t.Errorf("Expected objective max_profit, got %q", doc.Objective)
	}
	if doc.Units["cdu"].Yields["arabian"]["diesel"] != 0.5 {
		t.Errorf("Expected diesel yield 0.5, got %v", doc.Units["cdu"].Yields)
	}
	if doc.Crudes["arabian"].Availability != 100 {
		t.Errorf("Expected availability 100, got %f", doc.Crudes["arabian"].Availability)
	}
	specs := doc.ToInput().Blends["gasoline"].Constraints
	if v, err := specs[0].Properties.Float("value"); err != nil || v != 10 {
		t.Errorf("Expected value 10, got %v (%v)", v, err)
	}
}

func TestLoader_CUEDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"crudes.cue": "package plant\ncrudes: arabian: {availability: 100, cost: 1}\n",
		"units.cue":  "package plant\nunits: cdu: {capacity: 100, yields: arabian: {naphtha: 1}}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	loaded, err := NewLoader().Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(loaded.SourceFiles) != 2 {
		t.Errorf("Expected 2 source files, got %v", loaded.SourceFiles)
	}
	if _, ok := loaded.Document.Units["cdu"]; !ok {
		t.Error("Expected unit from the second file")
	}
}

func TestLoader_CUEDirectoryPackageError(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"crudes.cue": "package plant\ncrudes: arabian: {availability: 100, cost: 1}\n",
		"units.cue":  "package other\nunits: cdu: {capacity: 100, yields: arabian: {naphtha: 1}}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	_, err := NewLoader().Load(context.Background(), dir)
	if err == nil {
		t.Fatal("Expected error for mixed CUE packages, got nil")
	}
	if !strings.Contains(err.Error(), "failed to load CUE package") {
		t.Errorf("Expected package load error, got: %v", err)
	}
}

func TestLoader_HCL(t *testing.T) {
	path := writeFile(t, "plant.hcl", plantHCL)

	loaded, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	doc := loaded.Document
	if doc.Metadata.Description != "Test plant" {
		t.Errorf("Expected description, got %q", doc.Metadata.Description)
	}
	if doc.Units["cdu"].Yields["arabian"]["naphtha"] != 0.5 {
		t.Errorf("Expected naphtha yield 0.5, got %v", doc.Units["cdu"].Yields)
	}
	if doc.PoolProperties["naphtha"]["RON"] != 92 {
		t.Errorf("Expected RON 92, got %v", doc.PoolProperties)
	}

	b := doc.Blends["gasoline"]
	if len(b.BlendRatios) != 1 || b.BlendRatios[0]["naphtha"] != 1 {
		t.Errorf("Expected one ratio row, got %v", b.BlendRatios)
	}
	if len(b.Constraints) != 1 || b.Constraints[0].Kind() != "min_ron" || b.Constraints[0]["value"] != 90.0 {
		t.Errorf("Expected min_ron constraint with value 90, got %v", b.Constraints)
	}
}

func TestLoader_HCLDuplicateBlock(t *testing.T) {
	content := `
crude "arabian" { availability = 1 }
crude "arabian" { availability = 2 }
`
	_, err := NewLoader().LoadBytes(context.Background(), []byte(content), FormatHCL, "dup.hcl")

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected LoadError, got: %v", err)
	}
	if !strings.Contains(loadErr.Errors[0].Message, `duplicate crude block "arabian"`) {
		t.Errorf("Unexpected message %q", loadErr.Errors[0].Message)
	}
}

func TestLoader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		content string
		wantMsg string
	}{
		{
			name:    "negative availability",
			format:  FormatYAML,
			content: "crudes:\n  arabian: {availability: -1}\n",
			wantMsg: "gte",
		},
		{
			name:    "missing crudes",
			format:  FormatYAML,
			content: "objective: max_profit\n",
			wantMsg: "required",
		},
		{
			name:    "unknown key",
			format:  FormatYAML,
			content: "crudez:\n  arabian: {availability: 1}\n",
			wantMsg: "crudez",
		},
		{
			name:    "constraint without type",
			format:  FormatYAML,
			content: "crudes:\n  c: {availability: 1}\nblends:\n  b:\n    price: 1\n    components: [c]\n    constraints:\n      - value: 1\n",
			wantMsg: "constraint has no type",
		},
		{
			name:    "empty document",
			format:  FormatYAML,
			content: "",
			wantMsg: "empty document",
		},
		{
			name:    "cue syntax",
			format:  FormatCUE,
			content: "crudes: {\n\tinvalid syntax here\n}\n",
		},
		{
			name:    "hcl syntax",
			format:  FormatHCL,
			content: "crude \"a\" {\n",
		},
		{
			name:    "hcl missing attribute",
			format:  FormatHCL,
			content: "crude \"a\" {\n  cost = 1\n}\n",
			wantMsg: "availability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadBytes(context.Background(), []byte(tt.content), tt.format, "doc")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("Expected LoadError, got %T: %v", err, err)
			}
			if len(loadErr.Errors) == 0 {
				t.Fatal("Expected at least one validation error")
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}

func TestLoader_SchemaRejectsObjectiveSpelling(t *testing.T) {
	content := "crudes:\n  arabian: {availability: 1}\nobjective: Max-Profit\n"
	_, err := NewLoader().LoadBytes(context.Background(), []byte(content), FormatYAML, "doc.yaml")

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected LoadError from schema validation, got: %v", err)
	}
}

func TestLoader_CanceledContext(t *testing.T) {
	path := writeFile(t, "plant.cue", plantCUE)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLoader().Load(ctx, path); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestLoader_SolvesLoadedPlant(t *testing.T) {
	for name, content := range map[string]string{"plant.yaml": plantYAML, "plant.cue": plantCUE, "plant.hcl": plantHCL} {
		t.Run(name, func(t *testing.T) {
			loaded, err := NewLoader().Load(context.Background(), writeFile(t, name, content))
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			ref, err := engine.NewRefinery(loaded.Document.ToInput())
			if err != nil {
				t.Fatalf("Expected no error building refinery, got: %v", err)
			}
			model, err := engine.Assemble(context.Background(), ref, engine.NewRegistry(), engine.AssembleOptions{Objective: loaded.Document.Objective})
			if err != nil {
				t.Fatalf("Expected no error assembling, got: %v", err)
			}
			sol, err := model.Optimize(context.Background(), solver.NewSimplex(), engine.SolveOptions{})
			if err != nil {
				t.Fatalf("Expected no error solving, got: %v", err)
			}
			if math.Abs(sol.Value-800) > 1e-6 {
				t.Errorf("Expected profit 800, got %f", sol.Value)
			}
		})
	}
}

func TestDocument_PoolPropertiesOverrideLegacy(t *testing.T) {
	doc := &Document{
		PoolProperties:   map[string]map[string]float64{"a": {"RON": 90}},
		StreamProperties: map[string]map[string]float64{"a": {"RON": 80}, "b": {"RON": 70}},
	}
	props := doc.Properties()
	if props["a"]["RON"] != 90 || props["b"]["RON"] != 70 {
		t.Errorf("Unexpected merged properties %v", props)
	}
}

func TestEncodeYAML_RoundTripsThroughLoader(t *testing.T) {
	doc, err := NewLoader().LoadBytes(context.Background(), []byte(plantHCL), FormatHCL, "plant.hcl")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	data, err := EncodeYAML(doc)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	again, err := NewLoader().LoadBytes(context.Background(), data, FormatYAML, "plant.yaml")
	if err != nil {
		t.Fatalf("Expected converted YAML to load, got: %v\n%s", err, data)
	}
	if again.Blends["gasoline"].Constraints[0].Kind() != "min_ron" {
		t.Errorf("Expected constraint to survive conversion, got %v", again.Blends["gasoline"].Constraints)
	}
}
