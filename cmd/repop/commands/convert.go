package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/config"
)

func newConvertCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "convert FILE",
		Short:   "Convert a CUE or HCL plant document to YAML",
		Example: `  repop convert plant.hcl -o plant.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.NewLoader().Load(cmd.Context(), args[0])
			if err != nil {
				printLoadError(cmd.ErrOrStderr(), err)
				return fmt.Errorf("%s is not valid", args[0])
			}
			data, err := config.EncodeYAML(loaded.Document)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	return cmd
}
