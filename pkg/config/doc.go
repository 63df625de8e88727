// Package config loads declarative plant documents and compiles scripted
// constraint kinds.
//
// # Formats
//
// A plant document has the sections metadata, crudes, units, blends,
// pool_properties (stream_properties is accepted as a legacy spelling),
// scripts and objective. It can be written as YAML or JSON, as CUE (a file or a
// directory holding one package) or as HCL with crude, unit, blend, pool and
// script blocks:
//
//	crude "arabian" {
//	  availability = 100
//	  cost         = 10
//	}
//
//	blend "gasoline" {
//	  price      = 20
//	  components = ["naphtha"]
//
//	  constraint "min_ron" {
//	    value = 90
//	  }
//	}
//
// Every format decodes into a Document, which is checked with validator struct
// tags and then unified with the built-in CUE #Plant schema. Problems are
// reported as a *LoadError listing each location.
//
// # Scripted constraints
//
// Entries under scripts are Starlark programs defining build(owner, props, plant).
// StarlarkEvaluator compiles them into engine builders and registers them under
// their kind, so documents can add quality rules without a rebuild.
//
// # Usage Example
//
//	loaded, err := config.NewLoader().Load(ctx, "plant.yaml")
//	if err != nil {
//	    return err
//	}
//	reg := engine.NewRegistry()
//	if err := config.NewStarlarkEvaluator(0).RegisterScripts(reg, loaded.Document.Scripts); err != nil {
//	    return err
//	}
//	ref, err := engine.NewRefinery(loaded.Document.ToInput())
package config
