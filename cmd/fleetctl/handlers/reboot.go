package handlers

import (
	"context"

	"github.com/krisavpn/fleetctl/internal/orchestrator"
)

// Reboot runs the reboot playbook against every recorded node. No
// infrastructure is touched and the recorded state is left alone, so no
// confirmation gate applies.
func Reboot(ctx context.Context, configPath string, metricsPath string) error {
	return run(ctx, configPath, true, metricsPath, orchestrator.ModeReboot)
}
