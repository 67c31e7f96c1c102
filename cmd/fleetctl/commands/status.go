package commands

import (
	"github.com/spf13/cobra"

	"github.com/krisavpn/fleetctl/cmd/fleetctl/handlers"
)

// Status returns the read-only command showing the recorded fleet and the
// pending delta.
func Status() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded nodes and pending changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fleet.yaml", "Path to fleet declaration file")

	return cmd
}
