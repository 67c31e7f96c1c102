// Package provision defines the boundary to the provisioning backend.
//
// In the concrete deployment the backend manages compute instances, DNS
// records and panel registration records. The reconciliation core only
// speaks this interface; it never renders provider syntax or scrapes
// provider state files.
package provision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

// PlanResult distinguishes a no-op plan from one with pending changes. The
// orchestrator gates user confirmation only on PlanChangesPending.
type PlanResult int

const (
	// PlanNoChanges means applying the plan creates no new resources. The
	// plan may still adopt resources that already exist in the backend.
	PlanNoChanges PlanResult = iota
	// PlanChangesPending means the plan would create or modify resources.
	PlanChangesPending
)

func (r PlanResult) String() string {
	if r == PlanNoChanges {
		return "no-changes"
	}
	return "changes-pending"
}

// Plan is a prepared set of create operations. Requested resources that
// already exist in the backend are adopted: Apply returns their live state
// without re-creating them, so a rerun converges instead of stranding them
// outside the recorded state. A plan is single-use: applying it consumes
// it, and a second Apply returns an error.
type Plan interface {
	// Result reports whether the plan contains changes.
	Result() PlanResult

	// Summary returns a human-readable description for the confirmation
	// prompt.
	Summary() string

	// Apply executes the plan and returns the resulting node states keyed
	// by name. On partial or total failure it returns a *Error reporting
	// which names succeeded.
	Apply(ctx context.Context) (map[string]fleet.NodeState, error)
}

// Driver is the provisioning backend boundary.
type Driver interface {
	// PlanCreate prepares creation of the given specs.
	PlanCreate(ctx context.Context, specs []fleet.NodeSpec) (Plan, error)

	// Destroy removes the named nodes and their downstream records.
	Destroy(ctx context.Context, names []string) error

	// ReplaceRegistration replaces the downstream registration records for
	// the given nodes. The compute instances are left untouched; the
	// registration API has no in-place update.
	ReplaceRegistration(ctx context.Context, nodes []fleet.NodeState) error

	// Read returns the backend's current view of the fleet, keyed by name.
	Read(ctx context.Context) (map[string]fleet.NodeState, error)
}

// Error reports a partial or total provisioning failure. Succeeded entries
// are real: the orchestrator records them so a rerun only re-attempts the
// failed names.
type Error struct {
	Succeeded map[string]fleet.NodeState
	Failed    map[string]error
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Failed[name])
	}
	return fmt.Sprintf("provisioning failed for %d of %d nodes: %s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(parts, "; "))
}
