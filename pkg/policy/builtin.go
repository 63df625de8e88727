package policy

// GetBuiltinPolicies returns all built-in network lint policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		orphanPoolPolicy(),
		deadEndPoolPolicy(),
		unusedCrudePolicy(),
		zeroCapacityPolicy(),
		unresolvedLevelPolicy(),
		ratioOverlapPolicy(),
		unpricedBlendPolicy(),
	}
}

// orphanPoolPolicy flags pools that something consumes but no unit produces.
// Their consumption is forced to zero by mass balance.
func orphanPoolPolicy() Policy {
	return Policy{
		Name:        "orphan-pool",
		Description: "Pools consumed by a unit or blend but produced by no unit",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"topology"},
		Rego: `package repop.lint.orphan_pool

import rego.v1

deny contains violation if {
	some name, pool in input.pools
	count(pool.producers) == 0
	violation := {
		"message": sprintf("pool %s is never produced; everything consuming it stays at zero", [name]),
		"entity": name,
	}
}
`,
	}
}

func deadEndPoolPolicy() Policy {
	return Policy{
		Name:        "dead-end-pool",
		Description: "Pools produced by a unit but consumed by nothing",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"topology"},
		Rego: `package repop.lint.dead_end_pool

import rego.v1

deny contains violation if {
	some name, pool in input.pools
	count(pool.producers) > 0
	count(pool.consumers) == 0
	violation := {
		"message": sprintf("pool %s is produced but neither blended nor processed further", [name]),
		"entity": name,
	}
}
`,
	}
}

func unusedCrudePolicy() Policy {
	return Policy{
		Name:        "unused-crude",
		Description: "Crudes no unit or blend consumes",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"topology"},
		Rego: `package repop.lint.unused_crude

import rego.v1

deny contains violation if {
	some name, crude in input.crudes
	count(crude.consumers) == 0
	violation := {
		"message": sprintf("crude %s is not fed to any unit or blend", [name]),
		"entity": name,
	}
}
`,
	}
}

func zeroCapacityPolicy() Policy {
	return Policy{
		Name:        "zero-capacity",
		Description: "Units or crudes that can never carry flow",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"capacity"},
		Rego: `package repop.lint.zero_capacity

import rego.v1

deny contains violation if {
	some name, unit in input.units
	unit.capacity == 0
	violation := {
		"message": sprintf("unit %s has zero capacity", [name]),
		"entity": name,
	}
}

deny contains violation if {
	some name, crude in input.crudes
	crude.availability == 0
	violation := {
		"message": sprintf("crude %s has zero availability", [name]),
		"entity": name,
	}
}
`,
	}
}

func unresolvedLevelPolicy() Policy {
	return Policy{
		Name:        "unresolved-level",
		Description: "Units whose level fell back to 1 because a producer level could not be computed",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"topology", "levels"},
		Rego: `package repop.lint.unresolved_level

import rego.v1

deny contains violation if {
	some name in input.levels.unresolved
	violation := {
		"message": sprintf("unit %s has no computable level (cycle or unproduced feed); placed at level 1", [name]),
		"entity": name,
	}
}
`,
	}
}

// ratioOverlapPolicy flags components shared by two ratio rows of one blend.
// Such rows can make the equality system singular.
func ratioOverlapPolicy() Policy {
	return Policy{
		Name:        "ratio-overlap",
		Description: "Components that appear in more than one ratio row of a blend",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"ratios"},
		Rego: `package repop.lint.ratio_overlap

import rego.v1

deny contains violation if {
	some name, blend in input.blends
	some i, row in blend.ratios
	some j, other in blend.ratios
	i < j
	some comp, w in row
	w > 0
	other[comp] > 0
	violation := {
		"message": sprintf("blend %s: component %s appears in ratio rows %d and %d", [name, comp, i, j]),
		"entity": name,
	}
}
`,
	}
}

func unpricedBlendPolicy() Policy {
	return Policy{
		Name:        "unpriced-blend",
		Description: "Blends that earn nothing when sold",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"economics"},
		Rego: `package repop.lint.unpriced_blend

import rego.v1

deny contains violation if {
	some name, blend in input.blends
	blend.price <= 0
	violation := {
		"message": sprintf("blend %s has price %v and will not be produced under max_profit", [name, blend.price]),
		"entity": name,
	}
}
`,
	}
}
