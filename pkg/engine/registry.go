package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Scope selects which entity kind a constraint builder attaches to.
type Scope string

const (
	// ScopeBlend builders receive a blend name as owner.
	ScopeBlend Scope = "blend"
	// ScopeUnit builders receive a unit name as owner.
	ScopeUnit Scope = "unit"
)

// Builder compiles one constraint spec into linear relations.
type Builder func(v *View, owner string, props Properties) ([]Relation, error)

// Objective is the single weighted objective of a model.
type Objective struct {
	Name     string  `json:"name"`
	Expr     LinExpr `json:"expr"`
	Maximize bool    `json:"maximize"`
}

// ObjectiveBuilder compiles a named objective.
type ObjectiveBuilder func(v *View) (Objective, error)

// DefaultObjective is used when assembly does not name one.
const DefaultObjective = "max_profit"

// Registry maps constraint kinds and objective names to builders.
// It is populated before assembly and only read afterwards.
type Registry struct {
	mu         sync.RWMutex
	builders   map[Scope]map[string]Builder
	objectives map[string]ObjectiveBuilder
}

// NewEmptyRegistry creates a registry without any builder.
func NewEmptyRegistry() *Registry {
	return &Registry{
		builders: map[Scope]map[string]Builder{
			ScopeBlend: {},
			ScopeUnit:  {},
		},
		objectives: make(map[string]ObjectiveBuilder),
	}
}

// NewRegistry creates a registry pre-populated with the built-in kinds and objectives.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	registerBuiltins(r)
	return r
}

// NormalizeKind lowercases a kind and maps spaces to underscores, so that
// "Min Production" and "min_production" select the same builder.
func NormalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	return strings.Join(strings.Fields(k), "_")
}

// Clone returns an independent copy. Documents that declare their own kinds
// register them on a clone so the shared registry stays untouched.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Registry{
		builders:   make(map[Scope]map[string]Builder, len(r.builders)),
		objectives: maps.Clone(r.objectives),
	}
	for scope, table := range r.builders {
		c.builders[scope] = maps.Clone(table)
	}
	return c
}

// Register adds a constraint builder for scope. Registering a kind twice fails.
func (r *Registry) Register(scope Scope, kind string, b Builder) error {
	key := NormalizeKind(kind)
	if key == "" {
		return NewRegistryError("constraint kind must not be empty", nil).WithCode(ErrCodeValidation)
	}
	if b == nil {
		return NewRegistryError("constraint builder must not be nil", nil).
			WithCode(ErrCodeValidation).
			WithKind(key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.builders[scope]
	if !ok {
		return NewRegistryError(fmt.Sprintf("unknown scope %q", scope), nil).WithCode(ErrCodeValidation)
	}
	if _, exists := table[key]; exists {
		return NewRegistryError("constraint kind already registered", nil).
			WithCode(ErrCodeValidation).
			WithKind(key).
			WithDetail("scope", string(scope))
	}
	table[key] = b
	return nil
}

// RegisterObjective adds an objective builder.
func (r *Registry) RegisterObjective(name string, b ObjectiveBuilder) error {
	key := NormalizeKind(name)
	if key == "" || b == nil {
		return NewRegistryError("objective needs a name and a builder", nil).WithCode(ErrCodeValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objectives[key]; exists {
		return NewRegistryError("objective already registered", nil).
			WithCode(ErrCodeValidation).
			WithKind(key)
	}
	r.objectives[key] = b
	return nil
}

// Lookup returns the builder for kind in scope. The error names both the kind
// and the owning entity.
func (r *Registry) Lookup(scope Scope, kind, owner string) (Builder, error) {
	key := NormalizeKind(kind)

	r.mu.RLock()
	b, ok := r.builders[scope][key]
	r.mu.RUnlock()

	if !ok {
		return nil, NewRegistryError(
			fmt.Sprintf("%s constraint %q is not registered (owner %q)", scope, kind, owner), nil).
			WithCode(ErrCodeUnknownKind).
			WithEntity(owner).
			WithKind(kind)
	}
	return b, nil
}

// LookupObjective returns the objective builder registered under name.
func (r *Registry) LookupObjective(name string) (ObjectiveBuilder, error) {
	key := NormalizeKind(name)

	r.mu.RLock()
	b, ok := r.objectives[key]
	r.mu.RUnlock()

	if !ok {
		return nil, NewRegistryError(fmt.Sprintf("objective %q is not registered", name), nil).
			WithCode(ErrCodeUnknownObjective).
			WithKind(name)
	}
	return b, nil
}

// Kinds returns the registered kinds of scope in sorted order.
func (r *Registry) Kinds(scope Scope) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.builders[scope]))
}

// Objectives returns the registered objective names in sorted order.
func (r *Registry) Objectives() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.objectives))
}

// Float reads a numeric property.
func (p Properties) Float(key string) (float64, error) {
	raw, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing property %q", key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("property %q must be a number, got %T", key, raw)
	}
}

// String reads a string property.
func (p Properties) String(key string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing property %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("property %q must be a non-empty string, got %T", key, raw)
	}
	return s, nil
}

func badProperty(owner, kind string, err error) *EngineError {
	return NewValidationError("invalid constraint property", err).
		WithCode(ErrCodeBadProperty).
		WithEntity(owner).
		WithKind(kind)
}
