// Package configure defines the boundary to the configuration backend.
//
// Concretely the backend runs configuration-management playbooks against an
// inventory subset. The core only selects the playbook, the target host set
// and the variable map; it never renders playbook syntax.
package configure

import (
	"context"
	"fmt"
	"strings"
)

// Driver is the configuration backend boundary.
type Driver interface {
	// Apply runs the named playbook against the target hosts with the
	// given variables. A failure is reported as a *Error; the driver does
	// not retry and does not roll back per host. Configuration steps are
	// not assumed to be safely retryable without operator judgment.
	Apply(ctx context.Context, playbook string, targets []string, vars map[string]string) error
}

// Error reports a failed configuration run, naming the hosts it targeted.
type Error struct {
	Playbook string
	Hosts    []string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration run %s failed for hosts [%s]: %v",
		e.Playbook, strings.Join(e.Hosts, ", "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
