// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the spinless CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spinless",
		Short:         "Deploy tenant services and provision cloud resources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Serve())
	cmd.AddCommand(Version())

	return cmd
}
