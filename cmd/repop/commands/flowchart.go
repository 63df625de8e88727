package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/batch"
	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/solver"
	"github.com/repop/repop/pkg/telemetry"
)

func newFlowchartCommand(a *app) *cobra.Command {
	var (
		output string
		solve  bool
	)

	cmd := &cobra.Command{
		Use:   "flowchart FILE",
		Short: "Render the plant as a Graphviz flowchart",
		Example: `  # Write DOT and render it
  repop flowchart -o plant.dot plant.yaml && dot -Tsvg plant.dot > plant.svg

  # Label nodes with solved quantities
  repop flowchart --solve plant.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			p, err := loadPlant(ctx, path)
			if err != nil {
				printLoadError(cmd.ErrOrStderr(), err)
				return fmt.Errorf("%s is not valid", path)
			}

			if solve {
				doc := p.loaded.Document
				reg, err := batch.RegistryFor(engine.NewRegistry(), doc, 0)
				if err != nil {
					return err
				}
				model, err := telemetry.Assemble(ctx, path, p.refinery, reg, engine.AssembleOptions{Objective: doc.Objective})
				if err != nil {
					return err
				}
				if _, err := telemetry.Optimize(ctx, path, model, solver.NewSimplex(), engine.SolveOptions{}); err != nil {
					return err
				}
			}

			dot := engine.ToDOT(p.refinery, engine.DOTOptions{Quantities: solve})
			if output == "" || output == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), dot)
				return err
			}
			if err := os.WriteFile(output, []byte(dot), 0o644); err != nil {
				return fmt.Errorf("failed to write flowchart: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&solve, "solve", false, "solve first and label nodes with quantities")

	return cmd
}
