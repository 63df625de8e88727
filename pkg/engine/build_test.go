package engine

import (
	"errors"
	"testing"
)

func simpleInput() Input {
	return Input{
		Crudes: map[string]CrudeInput{
			"arabian": {Availability: 100, Cost: 1},
		},
		Units: map[string]UnitInput{
			"cdu": {
				Capacity: 100,
				Cost:     1,
				Yields:   map[string]map[string]float64{"arabian": {"naphtha": 0.5, "diesel": 0.5}},
			},
		},
		Blends: map[string]BlendInput{
			"gasoline": {Price: 20, Components: []string{"naphtha"}},
		},
		PoolProperties: map[string]map[string]float64{
			"naphtha": {"RON": 92},
			"arabian": {"sulphur": 2.1},
		},
	}
}

func TestNewRefinery_DiscoversPools(t *testing.T) {
	ref, err := NewRefinery(simpleInput())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(ref.Pools) != 2 {
		t.Fatalf("Expected 2 pools, got %d", len(ref.Pools))
	}
	if ref.Pools["naphtha"].Properties["RON"] != 92 {
		t.Errorf("Expected naphtha RON 92, got %v", ref.Pools["naphtha"].Properties)
	}
	if len(ref.Pools["diesel"].Properties) != 0 {
		t.Errorf("Expected diesel without properties, got %v", ref.Pools["diesel"].Properties)
	}
	if got := ref.Pools["naphtha"].Producers; len(got) != 1 || got[0] != "cdu" {
		t.Errorf("Expected naphtha produced by cdu, got %v", got)
	}
	if ref.Crudes["arabian"].Properties["sulphur"] != 2.1 {
		t.Errorf("Expected crude properties from overrides, got %v", ref.Crudes["arabian"].Properties)
	}
}

func TestNewRefinery_BlendComponentBecomesPool(t *testing.T) {
	in := simpleInput()
	in.Blends["jet"] = BlendInput{Price: 5, Components: []string{"kerosene"}}

	ref, err := NewRefinery(in)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, ok := ref.Pools["kerosene"]; !ok {
		t.Fatal("Expected kerosene to be discovered as a pool")
	}
	if len(ref.Pools["kerosene"].Producers) != 0 {
		t.Errorf("Expected kerosene without producers")
	}
}

func TestNewRefinery_CrudeAsBlendComponent(t *testing.T) {
	in := simpleInput()
	in.Blends["raw"] = BlendInput{Price: 5, Components: []string{"arabian"}}

	ref, err := NewRefinery(in)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, ok := ref.Pools["arabian"]; ok {
		t.Error("Expected crude not to become a pool")
	}
}

func TestNewRefinery_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		code   string
	}{
		{
			name: "output collides with crude",
			mutate: func(in *Input) {
				in.Units["cdu"] = UnitInput{Capacity: 1, Yields: map[string]map[string]float64{"arabian": {"arabian": 1}}}
			},
			code: ErrCodeNameCollision,
		},
		{
			name: "ratio row names foreign component",
			mutate: func(in *Input) {
				in.Blends["gasoline"] = BlendInput{
					Components: []string{"naphtha"},
					Ratios:     []map[string]float64{{"naphtha": 1, "diesel": 2}},
				}
			},
			code: ErrCodeInvalidRatio,
		},
		{
			name: "ratio row without positive entry",
			mutate: func(in *Input) {
				in.Blends["gasoline"] = BlendInput{
					Components: []string{"naphtha"},
					Ratios:     []map[string]float64{{"naphtha": 0}},
				}
			},
			code: ErrCodeInvalidRatio,
		},
		{
			name: "negative yield",
			mutate: func(in *Input) {
				in.Units["cdu"] = UnitInput{Capacity: 1, Yields: map[string]map[string]float64{"arabian": {"naphtha": -1}}}
			},
			code: ErrCodeValidation,
		},
		{
			name: "negative capacity",
			mutate: func(in *Input) {
				in.Units["cdu"] = UnitInput{Capacity: -1, Yields: map[string]map[string]float64{"arabian": {"naphtha": 1}}}
			},
			code: ErrCodeValidation,
		},
		{
			name: "unit without yields",
			mutate: func(in *Input) {
				in.Units["cdu"] = UnitInput{Capacity: 1}
			},
			code: ErrCodeValidation,
		},
		{
			name: "unknown unit feed",
			mutate: func(in *Input) {
				in.Units["reformer"] = UnitInput{Capacity: 1, Yields: map[string]map[string]float64{"ghost": {"reformate": 1}}}
			},
			code: ErrCodeUnknownComponent,
		},
		{
			name: "unit feed naming a blend",
			mutate: func(in *Input) {
				in.Units["reformer"] = UnitInput{Capacity: 1, Yields: map[string]map[string]float64{"gasoline": {"reformate": 1}}}
			},
			code: ErrCodeUnknownComponent,
		},
		{
			name: "duplicate component",
			mutate: func(in *Input) {
				in.Blends["gasoline"] = BlendInput{Components: []string{"naphtha", "naphtha"}}
			},
			code: ErrCodeValidation,
		},
		{
			name: "constraint without type",
			mutate: func(in *Input) {
				in.Blends["gasoline"] = BlendInput{
					Components:  []string{"naphtha"},
					Constraints: []ConstraintSpec{{Properties: Properties{"value": 1}}},
				}
			},
			code: ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := simpleInput()
			tt.mutate(&in)

			_, err := NewRefinery(in)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !IsValidation(err) {
				t.Errorf("Expected validation class, got: %v", err)
			}
			var e *EngineError
			if !errors.As(err, &e) || e.Code != tt.code {
				t.Errorf("Expected code %s, got: %v", tt.code, err)
			}
		})
	}
}

func TestNewRefinery_RatioRowDropsNonPositive(t *testing.T) {
	in := simpleInput()
	in.Units["cdu"] = UnitInput{
		Capacity: 100,
		Yields:   map[string]map[string]float64{"arabian": {"naphtha": 0.5, "reformate": 0.5}},
	}
	in.Blends["gasoline"] = BlendInput{
		Components: []string{"naphtha", "reformate"},
		Ratios:     []map[string]float64{{"naphtha": 2, "reformate": 0, "diesel": -1}},
	}

	ref, err := NewRefinery(in)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	row := ref.Blends["gasoline"].Ratios[0]
	if len(row) != 1 || row["naphtha"] != 2 {
		t.Errorf("Expected row {naphtha:2}, got %v", row)
	}
}

func TestEngineError_Message(t *testing.T) {
	err := NewRegistryError("kind not registered", nil).
		WithCode(ErrCodeUnknownKind).
		WithEntity("gasoline").
		WithKind("bogus_kind")

	want := "[registry] kind not registered (entity=gasoline, kind=bogus_kind)"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, &EngineError{Class: ErrorClassRegistry, Code: ErrCodeUnknownKind}) {
		t.Error("Expected errors.Is to match on class and code")
	}
}
