package fleet

import "time"

// NodeSpec is a single node as declared by the operator. The name is the
// unique key within a fleet. A NodeSpec is immutable once a reconciliation
// pass has started diffing against it.
type NodeSpec struct {
	Name     string
	Region   string
	Plan     string
	Port     int
	Inbounds []string
	Tags     map[string]string
}

// NodeState is the last-known provisioned reality of one node. It is owned
// by the state store and mutated only after a confirmed provisioning action
// succeeded.
type NodeState struct {
	Name              string    `json:"name"`
	PublicAddress     string    `json:"public_address"`
	ProvisionedAt     time.Time `json:"provisioned_at"`
	ConfigFingerprint string    `json:"config_fingerprint"`
}

// StateVersion is the current on-disk record version. Fields are only ever
// added, never renamed or removed, so older records stay readable and the
// file stays safe to hand-edit.
const StateVersion = 1

// State is the aggregate last-known state of one fleet: the single source
// of truth for "what exists". It is loaded at run start and persisted
// all-or-nothing at the end of a successful pass.
type State struct {
	Version int                  `json:"version"`
	Nodes   map[string]NodeState `json:"nodes"`
}

// NewState returns an empty fleet state at the current record version.
func NewState() State {
	return State{
		Version: StateVersion,
		Nodes:   make(map[string]NodeState),
	}
}

// Clone returns a deep copy. The orchestrator mutates a clone during a pass
// and persists it once at the end, so a failed pass never leaves the loaded
// state half-modified.
func (s State) Clone() State {
	out := State{Version: s.Version, Nodes: make(map[string]NodeState, len(s.Nodes))}
	for name, node := range s.Nodes {
		out.Nodes[name] = node
	}
	return out
}

// Names returns the node names in the state, sorted.
func (s State) Names() []string {
	return sortedKeys(s.Nodes)
}
