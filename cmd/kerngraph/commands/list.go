package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerngraph/kerngraph/pkg/builtin"
)

// NewListTransformsCommand creates the list-transforms subcommand.
func NewListTransformsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-transforms",
		Short: "List the builtin transformations available to connection specs",
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, name := range builtin.Names() {
				spec, ok := builtin.Params(name)
				if !ok {
					continue
				}

				fmt.Printf("%s\n%s\n\n", name, spec.Describe())
			}

			return nil
		},
	}
}
