// Package engine compiles a refinery process network into a linear program.
//
// # Overview
//
// The compiler runs in strictly ordered stages:
//
//  1. Build - validate the declarative Input and discover pools (NewRefinery)
//  2. Level - assign a topological level to every unit and pool (AssignLevels)
//  3. Allocate - create one variable per graph edge in an Arena
//  4. Core - emit capacity, availability, mass balance and blend definitions
//  5. Registry - compile every ConstraintSpec through a Registry builder
//  6. Objective - build the selected objective (default "max_profit")
//  7. Solve - submit the Program to a Solver and write rounded quantities back
//
// # Entities
//
//   - Crude: purchased input bounded by availability
//   - Unit: processing step with fixed yields bounded by capacity
//   - Pool: intermediate stream, discovered from unit outputs and blend components
//   - Blend: sellable product built from pool (or crude) allocations
//
// Entities never hold variables by value. They store VarID handles into the
// model's Arena, so the unit feeding on a pool and the pool itself refer to
// the same unknown.
//
// # Registry
//
// Constraint kinds are looked up in an explicit Registry passed to Assemble.
// NewRegistry returns one pre-populated with the built-in kinds:
//
//	min_property, max_property, min_ron, max_rvp, max_sulphur
//	min_ratio, max_ratio, min_production, max_production, blend_ratio
//	min_throughput, max_throughput, max_feed, min_output
//
// Custom kinds are added with Register before assembly starts:
//
//	reg := engine.NewRegistry()
//	_ = reg.Register(engine.ScopeBlend, "max_benzene", myBuilder)
//	model, err := engine.Assemble(ctx, ref, reg, engine.AssembleOptions{})
//
// # Solving
//
// The numerical algorithm lives behind the Solver interface. A non-optimal
// status is always returned as an error (see IsInfeasible and IsUnbounded)
// and never writes quantities.
package engine
