package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/report"
	"github.com/repop/repop/pkg/telemetry"
)

func newValidateCommand(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a plant document",
		Long: `Validate a plant document without solving it.

This command checks:
  - Document syntax and the plant schema
  - Feeds, components and yield ratios of the network
  - Unit levels (cycles are placed at level 1 and reported)
  - Lint policies (OPA/rego), built-in and --policy`,
		Example: `  # Validate a YAML plant
  repop validate plant.yaml

  # Fail on lint findings of severity error or critical
  repop validate --strict --policy ./policies plant.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			path := args[0]

			log.Debug().Str("path", path).Bool("strict", strict).Msg("Validating plant")

			p, err := loadPlant(ctx, path)
			if err != nil {
				printLoadError(out, err)
				return fmt.Errorf("%s is not valid", path)
			}

			ref := p.refinery
			if err := report.WriteLevels(out, ref.Levels()); err != nil {
				return err
			}

			lint, err := a.lintEngine(ctx)
			if err != nil {
				return err
			}
			op := telemetry.StartOperation(ctx, telemetry.SpanLint, telemetry.AttrDocument.String(path))
			result, err := lint.Evaluate(op.Ctx, ref)
			op.End(err)
			if err != nil {
				return err
			}
			for _, v := range result.Violations {
				a.tel.Metrics.RecordViolation(v.Policy, string(v.Severity))
			}
			if err := report.WriteLint(out, result); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%s: %d crudes, %d units, %d pools, %d blends, %d lint findings\n",
				path, len(ref.Crudes), len(ref.Units), len(ref.Pools), len(ref.Blends), len(result.Violations))

			if strict && !result.Allowed {
				return fmt.Errorf("%s has blocking lint findings", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on lint findings of severity error or critical")

	return cmd
}
