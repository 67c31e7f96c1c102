package handlers

import (
	"context"

	"github.com/krisavpn/fleetctl/internal/orchestrator"
)

// Destroy tears down every recorded node and persists the emptied state.
func Destroy(ctx context.Context, configPath string, yes bool, metricsPath string) error {
	return run(ctx, configPath, yes, metricsPath, orchestrator.ModeDestroy)
}
