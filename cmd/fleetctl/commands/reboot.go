package commands

import (
	"github.com/spf13/cobra"

	"github.com/krisavpn/fleetctl/cmd/fleetctl/handlers"
)

// Reboot returns the command for the rolling-reboot pass.
func Reboot() *cobra.Command {
	var (
		configPath  string
		metricsPath string
	)

	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Run the reboot playbook against every recorded node",
		Long: `Run the reboot playbook against the whole recorded fleet.

No infrastructure is touched and the recorded state is not modified; this
is the operational path for kernel updates and host reboots.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Reboot(cmd.Context(), configPath, metricsPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fleet.yaml", "Path to fleet declaration file")
	cmd.Flags().StringVar(&metricsPath, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}
