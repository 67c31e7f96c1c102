// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing and flag binding. Command execution is delegated to handler
// functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the fleetctl CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Reconcile a VPN node fleet against its declared topology",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Deploy())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Reboot())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Status())
	cmd.AddCommand(Version())

	return cmd
}
