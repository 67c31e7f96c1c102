package configure

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// AnsibleRunner runs playbooks through the ansible-playbook CLI. It is a
// thin adapter: it builds the invocation and streams output; everything the
// playbook does is the external tool's business.
type AnsibleRunner struct {
	// Dir is the configuration root containing playbooks/ and the
	// inventory.
	Dir string
	// Inventory is the inventory path relative to Dir.
	Inventory string

	// run executes the prepared command. Swapped in tests.
	run func(ctx context.Context, dir string, args []string) error
}

// NewAnsibleRunner creates a runner rooted at dir with the given inventory.
func NewAnsibleRunner(dir, inventory string) *AnsibleRunner {
	return &AnsibleRunner{
		Dir:       dir,
		Inventory: inventory,
		run:       runAnsiblePlaybook,
	}
}

// Apply implements Driver.
func (r *AnsibleRunner) Apply(ctx context.Context, playbook string, targets []string, vars map[string]string) error {
	args := r.buildArgs(playbook, targets, vars)
	if err := r.run(ctx, r.Dir, args); err != nil {
		return &Error{Playbook: playbook, Hosts: targets, Err: err}
	}
	return nil
}

// buildArgs assembles the ansible-playbook argument list. Variables are
// emitted in sorted order so invocations are reproducible in logs.
func (r *AnsibleRunner) buildArgs(playbook string, targets []string, vars map[string]string) []string {
	args := []string{filepath.Join("playbooks", playbook)}

	if r.Inventory != "" {
		args = append(args, "-i", r.Inventory)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, vars[k]))
	}

	if len(targets) > 0 {
		limit := make([]string, len(targets))
		copy(limit, targets)
		sort.Strings(limit)
		args = append(args, "--limit", strings.Join(limit, ","))
	}

	return args
}

func runAnsiblePlaybook(ctx context.Context, dir string, args []string) error {
	cmd := exec.CommandContext(ctx, "ansible-playbook", args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ansible-playbook %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
