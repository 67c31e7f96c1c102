package handlers

import (
	"context"

	"github.com/krisavpn/fleetctl/internal/orchestrator"
)

// Apply runs the infrastructure-only pass: like Deploy, but the
// configuration playbooks are skipped.
func Apply(ctx context.Context, configPath string, yes bool, metricsPath string) error {
	return run(ctx, configPath, yes, metricsPath, orchestrator.ModeApply)
}
