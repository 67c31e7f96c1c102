package commands

import (
	"github.com/spf13/cobra"

	"github.com/krisavpn/fleetctl/cmd/fleetctl/handlers"
)

// Destroy returns the command tearing down the whole fleet.
func Destroy() *cobra.Command {
	var (
		configPath  string
		metricsPath string
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy every recorded fleet node",
		Long: `Destroy every node recorded in the fleet state, including their DNS
records, and persist the emptied state. Always asks for confirmation
unless --yes is passed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), configPath, yes, metricsPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fleet.yaml", "Path to fleet declaration file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Approve destruction without prompting")
	cmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}
