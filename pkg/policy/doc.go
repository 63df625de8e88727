// Package policy lints refinery networks with Open Policy Agent (OPA).
//
// Lint policies look at the built network, not the solved model: which pools
// are never produced, which crudes nothing consumes, which ratio rows overlap.
// Each policy is a Rego module defining a deny set. Members are either plain
// strings or objects:
//
//	{"message": "...", "entity": "naphtha", "severity": "error"}
//
// The input document is built by NewInput and has the keys crudes, units,
// pools, blends and levels.
//
// # Built-in Policies
//
//   - orphan-pool: a pool is consumed but never produced (warning)
//   - dead-end-pool: a pool is produced but never consumed (info)
//   - unused-crude: a crude nothing consumes (info)
//   - zero-capacity: a unit or crude that cannot carry flow (warning)
//   - unresolved-level: a unit placed at the fallback level (warning)
//   - ratio-overlap: a component shared by two ratio rows (warning)
//   - unpriced-blend: a blend with a non-positive price (info)
//
// # Custom Policies
//
// Custom .rego files are named after the file. A leading comment block
// becomes the description, and a "# severity: error" line sets the default
// severity:
//
//	# Every blend must carry a quality rule.
//	# severity: error
//	package repop.custom.quality
//
//	import rego.v1
//
//	deny contains violation if {
//	    some name, blend in input.blends
//	    count(blend.constraints) == 0
//	    violation := {"message": sprintf("blend %s is unconstrained", [name]), "entity": name}
//	}
//
// Error and critical findings make Result.Allowed false. The CLI fails
// strict runs on them.
package policy
