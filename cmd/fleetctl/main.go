// Package main is the entry point for the fleetctl CLI.
//
// fleetctl reconciles a fleet of VPN nodes against a declared topology:
// it diffs the declaration against the last-known state, provisions and
// destroys compute instances, waits for management-channel connectivity
// and runs the configuration playbooks.
//
// Commands: deploy, apply, reboot, destroy, status, version.
//
// For detailed usage information, run:
//
//	fleetctl --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/krisavpn/fleetctl/cmd/fleetctl/commands"
	"github.com/krisavpn/fleetctl/cmd/fleetctl/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Root().ExecuteContext(ctx); err != nil {
		if errors.Is(err, handlers.ErrCanceled) {
			fmt.Fprintln(os.Stderr, "canceled: no further changes were applied")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
