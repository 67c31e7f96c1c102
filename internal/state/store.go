package state

import (
	"context"
	"errors"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

// ErrLocked reports that another reconciliation run holds the fleet lock.
var ErrLocked = errors.New("fleet state is locked by another run")

// Store reads and writes the last-known fleet state.
type Store interface {
	// Load returns the persisted state. A store with no record yet returns
	// an empty state at the current version, not an error.
	Load(ctx context.Context) (fleet.State, error)

	// Save persists the state atomically: a crash mid-save must leave
	// either the previous record or the new one, never a torn file.
	Save(ctx context.Context, st fleet.State) error

	// Acquire takes the advisory run lock. It returns ErrLocked without
	// blocking if another run holds it. The returned function releases
	// the lock.
	Acquire(ctx context.Context) (func() error, error)
}
