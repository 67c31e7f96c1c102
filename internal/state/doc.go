// Package state persists the last-known fleet state.
//
// The record is a single versioned JSON document per fleet, written
// all-or-nothing at the end of a successful reconciliation pass. It is
// deliberately human-diffable: field names are stable across versions and
// the file is safe to hand-edit in emergencies.
//
// The store is also the mutual-exclusion boundary between runs: an
// advisory lock must be acquired before a pass touches anything, and a
// second concurrent run fails fast instead of corrupting state.
package state
