package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specJP(name string) NodeSpec {
	return NodeSpec{Name: name, Region: "jp", Plan: "p1", Port: 2222}
}

func stateFor(spec NodeSpec) NodeState {
	return NodeState{
		Name:              spec.Name,
		PublicAddress:     "203.0.113.10",
		ProvisionedAt:     time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		ConfigFingerprint: Fingerprint(spec),
	}
}

func TestDiffCreateOnly(t *testing.T) {
	desired := map[string]NodeSpec{"node-jp-0": specJP("node-jp-0")}

	d := Diff(desired, map[string]NodeState{})

	require.Len(t, d.ToCreate, 1)
	assert.Equal(t, "node-jp-0", d.ToCreate[0].Name)
	assert.Empty(t, d.ToDestroy)
	assert.Empty(t, d.ToReplace)
	assert.Empty(t, d.Unchanged)
	assert.False(t, d.Empty())
}

func TestDiffUnchanged(t *testing.T) {
	spec := specJP("node-jp-0")
	desired := map[string]NodeSpec{"node-jp-0": spec}
	current := map[string]NodeState{"node-jp-0": stateFor(spec)}

	d := Diff(desired, current)

	assert.True(t, d.Empty())
	assert.Equal(t, []string{"node-jp-0"}, d.Unchanged)
}

func TestDiffEmptyDesiredDestroysEverything(t *testing.T) {
	spec := specJP("node-jp-0")
	current := map[string]NodeState{"node-jp-0": stateFor(spec)}

	d := Diff(map[string]NodeSpec{}, current)

	require.Len(t, d.ToDestroy, 1)
	assert.Equal(t, []string{"node-jp-0"}, d.DestroyNames())
	assert.Empty(t, d.ToCreate)
}

func TestDiffFingerprintSensitivity(t *testing.T) {
	// Changing a fingerprint-relevant field for exactly one node must
	// schedule a replacement for that node alone.
	specA := specJP("node-jp-0")
	specB := specJP("node-jp-1")
	current := map[string]NodeState{
		"node-jp-0": stateFor(specA),
		"node-jp-1": stateFor(specB),
	}

	changed := specB
	changed.Port = 2443
	desired := map[string]NodeSpec{"node-jp-0": specA, "node-jp-1": changed}

	d := Diff(desired, current)

	assert.Equal(t, []string{"node-jp-1"}, d.ToReplace)
	assert.Equal(t, []string{"node-jp-0"}, d.Unchanged)
	assert.Empty(t, d.ToCreate)
	assert.Empty(t, d.ToDestroy)
}

func TestDiffIdempotent(t *testing.T) {
	desired := map[string]NodeSpec{
		"node-jp-0": specJP("node-jp-0"),
		"node-de-0": {Name: "node-de-0", Region: "de", Plan: "p2", Port: 2222},
	}
	current := map[string]NodeState{
		"node-jp-0": stateFor(specJP("node-jp-0")),
		"node-us-0": stateFor(NodeSpec{Name: "node-us-0", Region: "us", Plan: "p1"}),
	}

	first := Diff(desired, current)
	second := Diff(desired, current)

	assert.Equal(t, first, second)
}

func TestDiffConvergence(t *testing.T) {
	// Applying a delta's creations and destructions, then re-diffing
	// against the updated state, must yield an empty delta.
	desired := map[string]NodeSpec{
		"node-jp-0": specJP("node-jp-0"),
		"node-de-0": {Name: "node-de-0", Region: "de", Plan: "p1", Port: 2222},
	}
	current := map[string]NodeState{
		"node-us-0": stateFor(NodeSpec{Name: "node-us-0", Region: "us", Plan: "p1"}),
	}

	d := Diff(desired, current)
	require.Len(t, d.ToCreate, 2)
	require.Len(t, d.ToDestroy, 1)

	for _, node := range d.ToDestroy {
		delete(current, node.Name)
	}
	for _, spec := range d.ToCreate {
		current[spec.Name] = stateFor(spec)
	}

	assert.True(t, Diff(desired, current).Empty())
}

func TestDiffOrdering(t *testing.T) {
	desired := map[string]NodeSpec{
		"node-b": specJP("node-b"),
		"node-a": specJP("node-a"),
		"node-c": specJP("node-c"),
	}

	d := Diff(desired, map[string]NodeState{})

	assert.Equal(t, []string{"node-a", "node-b", "node-c"}, d.CreateNames())
}
