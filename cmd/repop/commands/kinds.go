package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/batch"
	"github.com/repop/repop/pkg/engine"
)

func newKindsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kinds [FILE]",
		Short: "List constraint kinds and objectives",
		Long: `List the registered constraint kinds per scope and the objectives.

With a plant document, kinds declared in its scripts section are included.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := engine.NewRegistry()
			if len(args) == 1 {
				p, err := loadPlant(cmd.Context(), args[0])
				if err != nil {
					printLoadError(cmd.ErrOrStderr(), err)
					return fmt.Errorf("%s is not valid", args[0])
				}
				if reg, err = batch.RegistryFor(reg, p.loaded.Document, 0); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "blend:      %s\n", strings.Join(reg.Kinds(engine.ScopeBlend), ", "))
			fmt.Fprintf(out, "unit:       %s\n", strings.Join(reg.Kinds(engine.ScopeUnit), ", "))
			fmt.Fprintf(out, "objectives: %s\n", strings.Join(reg.Objectives(), ", "))
			return nil
		},
	}

	return cmd
}
