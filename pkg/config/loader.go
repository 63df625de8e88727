package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// Supported document formats.
const (
	FormatYAML = "yaml"
	FormatCUE  = "cue"
	FormatHCL  = "hcl"
)

// DetectFormat picks a format from the file extension. Directories are CUE packages.
func DetectFormat(path string) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return FormatCUE, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported document format %q", filepath.Ext(path))
	}
}

// Loader reads plant documents in any supported format and validates them.
// A Loader is not safe for concurrent use; create one per goroutine.
type Loader struct {
	cue       *CUEParser
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in plant schema.
func NewLoader() *Loader {
	return &Loader{
		cue:       NewCUEParser(),
		schemas:   NewSchemaRegistry(),
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Schemas exposes the schema registry so callers can add their own.
func (l *Loader) Schemas() *SchemaRegistry { return l.schemas }

// Load reads, decodes and validates the document at path.
func (l *Loader) Load(ctx context.Context, path string) (*Loaded, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var doc *Document
	sources := []string{path}
	switch format {
	case FormatCUE:
		doc, sources, err = l.cue.Parse(ctx, []string{path})
	case FormatHCL:
		// hclparse caches files by name, so a fresh parser sees edits.
		doc, err = NewHCLParser().ParseFile(ctx, path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err = decodeYAML(data, path)
	}
	if err != nil {
		return nil, err
	}

	if err := l.Validate(ctx, doc, path); err != nil {
		return nil, err
	}

	return &Loaded{
		Document:    doc,
		SourceFiles: sources,
		Format:      format,
		LoadedAt:    time.Now(),
	}, nil
}

// LoadBytes decodes and validates an in-memory document of the given format.
func (l *Loader) LoadBytes(ctx context.Context, data []byte, format, name string) (*Document, error) {
	var doc *Document
	var err error
	switch format {
	case FormatYAML:
		doc, err = decodeYAML(data, name)
	case FormatCUE:
		doc, err = l.cue.ParseInline(ctx, string(data))
	case FormatHCL:
		doc, err = NewHCLParser().ParseInline(ctx, data, name)
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := l.Validate(ctx, doc, name); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks struct tags, constraint kinds and the plant schema.
func (l *Loader) Validate(ctx context.Context, doc *Document, path string) error {
	var errs []ValidationError

	if err := l.validator.Struct(doc); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate %s: %w", path, err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				File:    path,
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on '%s' rule", fe.Tag()),
			})
		}
	}

	for name, u := range doc.Units {
		errs = append(errs, checkKinds(path, "units."+name, u.Constraints)...)
	}
	for name, b := range doc.Blends {
		errs = append(errs, checkKinds(path, "blends."+name, b.Constraints)...)
	}

	if len(errs) > 0 {
		return &LoadError{Path: path, Errors: errs}
	}

	if err := l.schemas.ValidateAgainstSchema(ctx, PlantSchema, doc); err != nil {
		if ctx.Err() != nil {
			return err
		}
		var cueErr cueerrors.Error
		if !errors.As(err, &cueErr) {
			return fmt.Errorf("failed to validate %s: %w", path, err)
		}
		schemaErrs := cueErrors(err)
		for i := range schemaErrs {
			schemaErrs[i].File = path
			schemaErrs[i].Line, schemaErrs[i].Column = 0, 0
		}
		return &LoadError{Path: path, Errors: schemaErrs}
	}
	return nil
}

func checkKinds(path, owner string, cfgs []ConstraintConfig) []ValidationError {
	var errs []ValidationError
	for i, c := range cfgs {
		if c.Kind() == "" {
			errs = append(errs, ValidationError{
				File:    path,
				Path:    fmt.Sprintf("%s.constraints[%d]", owner, i),
				Message: "constraint has no type",
			})
		}
	}
	return errs
}
