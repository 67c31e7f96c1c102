package commands

import (
	"github.com/spf13/cobra"

	"github.com/krisavpn/fleetctl/cmd/fleetctl/handlers"
)

// Deploy returns the command for the full reconciliation pass.
//
// Environment variables:
//
//	HCLOUD_TOKEN:         compute provider API token (required)
//	CLOUDFLARE_API_TOKEN: DNS provider API token (required)
func Deploy() *cobra.Command {
	var (
		configPath  string
		metricsPath string
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision, probe and configure the fleet",
		Long: `Reconcile the fleet against the declared topology.

This command diffs the declaration against the last-known state, asks for
confirmation when the delta is destructive, provisions missing nodes, waits
until they answer on the management channel, runs the configuration
playbooks and persists the new state.

Examples:
  # Reconcile using fleet.yaml in the current directory
  fleetctl deploy

  # Reconcile a specific declaration without prompting
  fleetctl deploy -c production.yaml --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), configPath, yes, metricsPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fleet.yaml", "Path to fleet declaration file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Approve changes without prompting")
	cmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}
