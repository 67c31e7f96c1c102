package handlers

import (
	"context"

	"github.com/krisavpn/fleetctl/internal/orchestrator"
)

// Deploy runs the full reconciliation pass: generate missing secrets, diff,
// confirm, provision, probe, configure, persist.
func Deploy(ctx context.Context, configPath string, yes bool, metricsPath string) error {
	return run(ctx, configPath, yes, metricsPath, orchestrator.ModeDeploy)
}
