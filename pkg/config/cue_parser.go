package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// CUEParser decodes plant documents written in CUE. Not safe for concurrent
// use; the Loader creates one per call path.
type CUEParser struct {
	ctx *cue.Context
}

func NewCUEParser() *CUEParser {
	return &CUEParser{ctx: cuecontext.New()}
}

// Parse unifies every source into one value and decodes it as a Document.
// A source is a .cue file or a directory holding one CUE package. The second
// result lists the files that were read.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*Document, []string, error) {
	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("no sources provided")
	}

	var (
		unified cue.Value
		files   []string
		errs    []ValidationError
	)
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		val, read, err := cp.compileSource(source)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, read...)
		if verr := val.Err(); verr != nil {
			errs = append(errs, cueErrors(verr)...)
			continue
		}
		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
	}

	label := strings.Join(sources, ",")
	if len(errs) > 0 {
		return nil, files, &LoadError{Path: label, Errors: errs}
	}
	doc, err := decodeCUE(unified, label)
	return doc, files, err
}

// compileSource builds one file or package directory. Read and package
// loading failures are returned as errors; CUE problems stay on the value.
func (cp *CUEParser) compileSource(source string) (cue.Value, []string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return cue.Value{}, nil, fmt.Errorf("failed to stat source %s: %w", source, err)
	}

	if !info.IsDir() {
		content, err := os.ReadFile(source)
		if err != nil {
			return cue.Value{}, nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
		return cp.ctx.CompileBytes(content, cue.Filename(source)), []string{source}, nil
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: source})
	if len(instances) == 0 {
		return cue.Value{}, nil, fmt.Errorf("no CUE package in %s", source)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, fmt.Errorf("failed to load CUE package %s: %w", source, inst.Err)
	}

	var files []string
	for _, f := range inst.Files {
		if f.Filename != "" {
			files = append(files, f.Filename)
		}
	}
	return cp.ctx.BuildInstance(inst), files, nil
}

// ParseInline parses CUE held in memory, as sent by editors and tests.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val := cp.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return nil, &LoadError{Path: "inline", Errors: cueErrors(err)}
	}
	return decodeCUE(val, "inline")
}

// decodeCUE requires a concrete value before decoding it.
func decodeCUE(val cue.Value, label string) (*Document, error) {
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Path: label, Errors: cueErrors(err)}
	}
	var doc Document
	if err := val.Decode(&doc); err != nil {
		return nil, &LoadError{Path: label, Errors: cueErrors(err)}
	}
	return &doc, nil
}

// cueErrors flattens a CUE error list, keeping the first position of each.
func cueErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		ve := ValidationError{Path: strings.Join(e.Path(), ".")}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File, ve.Line, ve.Column = pos[0].Filename(), pos[0].Line(), pos[0].Column()
		}
		msg, args := e.Msg()
		ve.Message = fmt.Sprintf(msg, args...)
		out = append(out, ve)
	}
	return out
}
