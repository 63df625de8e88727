package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/report"
)

func newLevelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels FILE",
		Short: "Print unit and pool levels",
		Long: `Print the topological level of every unit and pool.

Units fed only by crudes sit at level 1. Units that never resolve, because
they sit on a cycle, are placed at level 1 and listed as unresolved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPlant(cmd.Context(), args[0])
			if err != nil {
				printLoadError(cmd.OutOrStdout(), err)
				return fmt.Errorf("%s is not valid", args[0])
			}
			return report.WriteLevels(cmd.OutOrStdout(), p.refinery.Levels())
		},
	}

	return cmd
}
