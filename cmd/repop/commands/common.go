package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/config"
	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/policy"
	"github.com/repop/repop/pkg/telemetry"
)

// plant is a loaded document and the network built from it.
type plant struct {
	loaded   *config.Loaded
	refinery *engine.Refinery
}

// loadPlant reads path and builds its network.
func loadPlant(ctx context.Context, path string) (*plant, error) {
	op := telemetry.StartOperation(ctx, telemetry.SpanLoad, telemetry.AttrDocument.String(path))
	loaded, err := config.NewLoader().Load(op.Ctx, path)
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		format, _ := config.DetectFormat(path)
		tel.Metrics.RecordDocumentLoaded(format, err)
	}
	op.End(err)
	if err != nil {
		return nil, err
	}

	ref, err := engine.NewRefinery(loaded.Document.ToInput())
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", path, err)
	}
	return &plant{loaded: loaded, refinery: ref}, nil
}

// lintEngine creates a policy engine with the built-ins plus --policy paths.
func (a *app) lintEngine(ctx context.Context) (*policy.Engine, error) {
	lint, err := policy.NewEngine(a.tel.Logger.NewComponentLogger("lint").Zerolog())
	if err != nil {
		return nil, err
	}
	if len(a.policyPaths) > 0 {
		if err := lint.LoadPolicies(ctx, a.policyPaths); err != nil {
			return nil, err
		}
	}
	return lint, nil
}

// printLoadError lists every validation problem of a document.
func printLoadError(w io.Writer, err error) {
	var loadErr *config.LoadError
	if !errors.As(err, &loadErr) {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	for _, ve := range loadErr.Errors {
		fmt.Fprintf(w, "error: %s\n", ve)
	}
}

// precisionOption reads --precision. Unset keeps the defaults; 0 asks for
// whole units.
func precisionOption(cmd *cobra.Command, n int) (int, error) {
	switch {
	case !cmd.Flags().Changed("precision"):
		return 0, nil
	case n < 0:
		return 0, fmt.Errorf("--precision must not be negative, got %d", n)
	case n == 0:
		return engine.WholeUnits, nil
	}
	return n, nil
}
