package config

import (
	"fmt"
	"regexp"
)

// ValidationError reports malformed desired-state input. It is fatal for
// the run: nothing is retried, the operator fixes the file and reruns.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// Node names become hostnames and DNS labels.
var nodeNameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

var reconfigurePolicies = map[string]bool{
	ReconfigureTargeted:      true,
	ReconfigureFullOnReplace: true,
	ReconfigureAlwaysFull:    true,
}

// Validate checks the configuration for structural problems. It returns a
// *ValidationError describing the first problem found.
func (c *Config) Validate() error {
	if c.Fleet.Name == "" {
		return &ValidationError{Reason: "fleet.name is required"}
	}
	if !nodeNameRe.MatchString(c.Fleet.Name) {
		return &ValidationError{Reason: fmt.Sprintf("fleet.name %q must be a lowercase DNS label", c.Fleet.Name)}
	}
	if !reconfigurePolicies[c.Fleet.Reconfigure] {
		return &ValidationError{Reason: fmt.Sprintf("fleet.reconfigure %q must be one of targeted, full-on-replace, always-full", c.Fleet.Reconfigure)}
	}

	for name, node := range c.Fleet.Nodes {
		if !nodeNameRe.MatchString(name) {
			return &ValidationError{Reason: fmt.Sprintf("node name %q must be a lowercase DNS label", name)}
		}
		if node.Region == "" {
			return &ValidationError{Reason: fmt.Sprintf("node %q: region is required", name)}
		}
		if node.Plan == "" && c.Fleet.DefaultPlan == "" {
			return &ValidationError{Reason: fmt.Sprintf("node %q: plan is required when fleet.default_plan is unset", name)}
		}
		if node.Port < 0 || node.Port > 65535 {
			return &ValidationError{Reason: fmt.Sprintf("node %q: port %d out of range", name, node.Port)}
		}
	}

	switch c.State.Backend {
	case "file":
		// Path has a default.
	case "s3":
		if c.State.S3.Bucket == "" || c.State.S3.Key == "" {
			return &ValidationError{Reason: "state.s3.bucket and state.s3.key are required for the s3 backend"}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("state.backend %q must be file or s3", c.State.Backend)}
	}

	return nil
}
