package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block strict runs.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity fails a strict run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a lint rule with its Rego code. The module must define a
// set named deny whose members are strings or objects with message, entity and
// optionally severity.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy finding.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Entity is the crude, unit, pool or blend the finding is about.
	Entity string `json:"entity,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result is the outcome of linting one network.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all findings ordered by policy then entity.
	Violations []Violation `json:"violations,omitempty"`

	// Failures lists policies that could not be evaluated.
	Failures []string `json:"failures,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policies were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Count returns the number of violations with the given severity.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// Input is the network view handed to every policy as input.
type Input struct {
	Crudes map[string]CrudeFacts `json:"crudes"`
	Units  map[string]UnitFacts  `json:"units"`
	Pools  map[string]PoolFacts  `json:"pools"`
	Blends map[string]BlendFacts `json:"blends"`
	Levels LevelFacts            `json:"levels"`
}

// CrudeFacts describes a crude and who consumes it.
type CrudeFacts struct {
	Availability float64  `json:"availability"`
	Cost         float64  `json:"cost"`
	Consumers    []string `json:"consumers"`
}

// UnitFacts describes a processing unit.
type UnitFacts struct {
	Capacity    float64  `json:"capacity"`
	Cost        float64  `json:"cost"`
	Level       int      `json:"level"`
	Feeds       []string `json:"feeds"`
	Outputs     []string `json:"outputs"`
	Constraints []string `json:"constraints"`
}

// PoolFacts describes a discovered pool.
type PoolFacts struct {
	Level      int                `json:"level"`
	Producers  []string           `json:"producers"`
	Consumers  []string           `json:"consumers"`
	Properties map[string]float64 `json:"properties"`
}

// BlendFacts describes a blended product.
type BlendFacts struct {
	Price       float64              `json:"price"`
	Components  []string             `json:"components"`
	Ratios      []map[string]float64 `json:"ratios"`
	Constraints []string             `json:"constraints"`
}

// LevelFacts carries the leveling diagnostics.
type LevelFacts struct {
	Unresolved []string `json:"unresolved"`
	Orphans    []string `json:"orphans"`
	Passes     int      `json:"passes"`
}
