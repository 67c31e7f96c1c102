package commands

import (
	"github.com/spf13/cobra"

	"github.com/krisavpn/fleetctl/cmd/fleetctl/handlers"
)

// Apply returns the command for the infrastructure-only pass.
func Apply() *cobra.Command {
	var (
		configPath  string
		metricsPath string
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision and probe the fleet without configuring it",
		Long: `Reconcile infrastructure only.

Like deploy, but the configuration playbooks are skipped. Useful when the
configuration step will be run separately, or when validating that the
compute and DNS layers converge.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), configPath, yes, metricsPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fleet.yaml", "Path to fleet declaration file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Approve changes without prompting")
	cmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}
