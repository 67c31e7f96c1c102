package fleet

import "sort"

// Delta is the computed difference between desired and last-known state.
// It is derived fresh on every pass and never persisted. All slices are
// sorted by node name, so identical inputs produce identical deltas.
type Delta struct {
	// ToCreate holds specs declared but not yet provisioned.
	ToCreate []NodeSpec
	// ToDestroy holds state entries no longer declared.
	ToDestroy []NodeState
	// ToReplace names nodes whose fingerprint changed and whose downstream
	// registration must be replaced. The compute instance is untouched.
	ToReplace []string
	// Unchanged names nodes that match their declared spec.
	Unchanged []string
}

// Empty reports whether the delta requires no action at all.
func (d Delta) Empty() bool {
	return len(d.ToCreate) == 0 && len(d.ToDestroy) == 0 && len(d.ToReplace) == 0
}

// CreateNames returns the names of the specs in ToCreate, sorted.
func (d Delta) CreateNames() []string {
	names := make([]string, len(d.ToCreate))
	for i, spec := range d.ToCreate {
		names[i] = spec.Name
	}
	return names
}

// DestroyNames returns the names of the states in ToDestroy, sorted.
func (d Delta) DestroyNames() []string {
	names := make([]string, len(d.ToDestroy))
	for i, node := range d.ToDestroy {
		names[i] = node.Name
	}
	return names
}

// Diff computes the delta between a declared node set and the last-known
// state. It is a pure function of its inputs: no side effects, no hidden
// state, order-independent. Calling it twice with the same inputs yields
// the same delta.
func Diff(desired map[string]NodeSpec, current map[string]NodeState) Delta {
	var d Delta

	for _, name := range sortedKeys(desired) {
		spec := desired[name]
		node, exists := current[name]
		if !exists {
			d.ToCreate = append(d.ToCreate, spec)
			continue
		}
		if Fingerprint(spec) != node.ConfigFingerprint {
			d.ToReplace = append(d.ToReplace, name)
		} else {
			d.Unchanged = append(d.Unchanged, name)
		}
	}

	for _, name := range sortedKeys(current) {
		if _, declared := desired[name]; !declared {
			d.ToDestroy = append(d.ToDestroy, current[name])
		}
	}
	sort.Slice(d.ToDestroy, func(i, j int) bool {
		return d.ToDestroy[i].Name < d.ToDestroy[j].Name
	})

	return d
}
