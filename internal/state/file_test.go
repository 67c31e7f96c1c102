package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

func testState() fleet.State {
	st := fleet.NewState()
	st.Nodes["node-jp-0"] = fleet.NodeState{
		Name:              "node-jp-0",
		PublicAddress:     "203.0.113.10",
		ProvisionedAt:     time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC),
		ConfigFingerprint: "abc123",
	}
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "fleet.state.json"))

	require.NoError(t, store.Save(ctx, testState()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, fleet.StateVersion, loaded.Version)
	assert.Equal(t, testState().Nodes, loaded.Nodes)
}

func TestFileStoreMissingFileIsEmptyState(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fleet.StateVersion, st.Version)
	assert.Empty(t, st.Nodes)
	assert.NotNil(t, st.Nodes)
}

func TestFileStoreCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.state.json")
	require.NoError(t, os.WriteFile(path, []byte("{half a record"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStoreRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "nodes": {}}`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 99")
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "fleet.state.json"))

	require.NoError(t, store.Save(context.Background(), testState()))
	require.NoError(t, store.Save(context.Background(), testState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fleet.state.json", entries[0].Name())
}

func TestFileStoreHumanDiffable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.state.json")
	require.NoError(t, NewFileStore(path).Save(context.Background(), testState()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Stable field names, indented output.
	assert.Contains(t, string(data), "\"public_address\"")
	assert.Contains(t, string(data), "\n  \"nodes\"")
}

func TestFileStoreLockExcludesSecondRun(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "fleet.state.json"))

	release, err := store.Acquire(ctx)
	require.NoError(t, err)

	_, err = store.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release())

	release2, err := store.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release2())
}
