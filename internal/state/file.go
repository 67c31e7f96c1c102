package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/krisavpn/fleetctl/internal/fleet"
)

// FileStore persists the fleet state as a JSON file next to an advisory
// lock file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store. A missing file yields an empty state.
func (s *FileStore) Load(_ context.Context) (fleet.State, error) {
	data, err := os.ReadFile(s.path) // #nosec G304
	if os.IsNotExist(err) {
		return fleet.NewState(), nil
	}
	if err != nil {
		return fleet.State{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var st fleet.State
	if err := json.Unmarshal(data, &st); err != nil {
		return fleet.State{}, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	if st.Version > fleet.StateVersion {
		return fleet.State{}, fmt.Errorf("state file %s has version %d, newer than this binary supports (%d)", s.path, st.Version, fleet.StateVersion)
	}
	if st.Nodes == nil {
		st.Nodes = make(map[string]fleet.NodeState)
	}
	return st, nil
}

// Save implements Store. The record is written to a temp file in the same
// directory, synced, then renamed over the old one, so a crash mid-write
// cannot leave a torn state file.
func (s *FileStore) Save(_ context.Context, st fleet.State) error {
	st.Version = fleet.StateVersion

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

type lockRecord struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Acquire implements Store using a create-exclusive lock file. A stale lock
// left by a crashed run must be removed by the operator; guessing at
// staleness risks two runs mutating the same backend.
func (s *FileStore) Acquire(_ context.Context) (func() error, error) {
	lockPath := s.path + ".lock"

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) // #nosec G304
	if os.IsExist(err) {
		return nil, fmt.Errorf("%w (lock file: %s)", ErrLocked, lockPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	rec := lockRecord{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	if data, err := json.Marshal(rec); err == nil {
		_, _ = f.Write(data)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	return func() error {
		return os.Remove(lockPath)
	}, nil
}
