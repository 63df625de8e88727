package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/batch"
	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/report"
	"github.com/repop/repop/pkg/solver"
)

type optimizeFlags struct {
	objective   string
	precision   int
	jsonOutput  bool
	dotPath     string
	parallel    int
	metricsFile string
	strict      bool
	currency    string
}

func newOptimizeCommand(a *app) *cobra.Command {
	var f optimizeFlags

	cmd := &cobra.Command{
		Use:   "optimize FILE...",
		Short: "Solve plant documents and report the optimal plan",
		Long: `Assemble each plant document into a linear program, solve it and print
the overview, crude, unit and blending tables.

Several documents are solved concurrently, bounded by --parallel. A failing
document does not stop the others; the command fails if any document failed.`,
		Example: `  # Solve one plant
  repop optimize plant.yaml

  # Minimize crude spend and write the flowchart with quantities
  repop optimize --objective min_cost --dot plant.dot plant.yaml

  # Solve scenarios in parallel and leave metrics for node_exporter
  repop optimize --parallel 8 --metrics-file /var/lib/node_exporter/repop.prom scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if f.dotPath != "" && len(args) > 1 {
				return fmt.Errorf("--dot needs exactly one document, got %d", len(args))
			}

			precision, err := precisionOption(cmd, f.precision)
			if err != nil {
				return err
			}
			lint, err := a.lintEngine(ctx)
			if err != nil {
				return err
			}

			runner := batch.NewRunner(engine.NewRegistry(), lint, solver.NewSimplex(), batch.Options{
				Objective: f.objective,
				Precision: precision,
				Parallel:  f.parallel,
				Strict:    f.strict,
			})
			results, runErr := runner.Run(ctx, args)

			if f.metricsFile != "" {
				if err := a.tel.Metrics.WriteTextfile(f.metricsFile); err != nil {
					log.Warn().Err(err).Str("path", f.metricsFile).Msg("Failed to write metrics")
				}
			}
			if runErr != nil {
				return runErr
			}

			if f.jsonOutput {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else if err := writeReports(out, results, report.Options{Precision: precision, Currency: f.currency}); err != nil {
				return err
			}

			if f.dotPath != "" && results[0].OK() {
				dot := engine.ToDOT(results[0].Model.Refinery, engine.DOTOptions{Quantities: true})
				if err := os.WriteFile(f.dotPath, []byte(dot), 0o644); err != nil {
					return fmt.Errorf("failed to write flowchart: %w", err)
				}
			}

			if s := runner.Summary(); s.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed", s.Failed, s.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.objective, "objective", "", "objective name (default: document objective, then max_profit)")
	cmd.Flags().IntVar(&f.precision, "precision", 0, "decimals kept on solved quantities and shown in reports; 0 rounds to whole units")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print solutions as JSON")
	cmd.Flags().StringVar(&f.dotPath, "dot", "", "write a Graphviz flowchart with solved quantities")
	cmd.Flags().IntVar(&f.parallel, "parallel", batch.DefaultParallel, "documents solved at once")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "skip documents with lint findings of severity error or critical")
	cmd.Flags().StringVar(&f.currency, "currency", "$", "currency symbol in reports")

	return cmd
}

// writeJSON prints the solution for a single document, or every result for a batch.
func writeJSON(w io.Writer, results []*batch.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(results) == 1 && results[0].OK() {
		return enc.Encode(results[0].Solution)
	}
	return enc.Encode(results)
}

func writeReports(w io.Writer, results []*batch.Result, opts report.Options) error {
	for _, res := range results {
		if len(results) > 1 {
			fmt.Fprintf(w, "\n# %s\n", res.Path)
		}
		if err := report.WriteLint(w, res.Lint); err != nil {
			return err
		}
		if !res.OK() {
			fmt.Fprintf(w, "failed at %s: %v\n", res.Stage, res.Err)
			continue
		}
		if err := report.Write(w, res.Model, opts); err != nil {
			return err
		}
	}
	return nil
}
