package config

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// PlantSchema is the name of the built-in document schema.
const PlantSchema = "plant"

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value

	// mu also serialises use of ctx, which is not safe for concurrent use.
	mu sync.Mutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	if err := sr.RegisterSchema(PlantSchema, builtinPlantSchema, "#Plant"); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema compiles schema and stores the named definition under name.
// An empty definition registers the whole compiled value.
func (sr *SchemaRegistry) RegisterSchema(name, schema, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if _, exists := sr.schemas[name]; exists {
		return fmt.Errorf("schema %s already registered", name)
	}

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if definition != "" {
		val = val.LookupPath(cue.ParsePath(definition))
		if !val.Exists() {
			return fmt.Errorf("schema %s does not define %s", name, definition)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

const builtinPlantSchema = `
#Plant: {
	metadata?: #Metadata
	crudes: {[string]: #Crude}
	units?: {[string]: #Unit}
	blends?: {[string]: #Blend}
	pool_properties?: #PropertyTable
	stream_properties?: #PropertyTable
	scripts?: {[string]: #Script}
	objective?: string & =~"^[a-z_]+$"
}

#Metadata: {
	description?:  string
	version?:      string
	last_updated?: string
	author?:       string
}

#Crude: {
	availability: number & >=0
	cost:         number | *0
}

#Unit: {
	capacity: number & >=0
	cost:     number | *0
	// Feed name to {output pool: yield ratio}.
	yields: {[string]: {[string]: number & >=0}}
	constraints?: [...#Constraint]
}

#Blend: {
	price: number
	components: [string, ...string]
	blend_ratios?: [...{[string]: number}]
	constraints?: [...#Constraint]
}

#Constraint: {
	type: string & !=""
	...
}

#Script: {
	scope:  "blend" | "unit"
	source: string & !=""
}

#PropertyTable: {[string]: {[string]: number}}
`
