// Package batch solves independent plant documents concurrently.
//
// Each document runs through load, build, lint, assemble and solve on its
// own goroutine, bounded by Options.Parallel. Documents never share a
// loader or a model. The constraint registry is shared read-only; a
// document that declares Starlark scripts gets a clone of it.
package batch
