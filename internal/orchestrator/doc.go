// Package orchestrator drives one reconciliation pass: load desired state,
// diff against last-known state, confirm destructive changes, provision,
// probe connectivity, configure, persist.
//
// Composition is one-directional: the orchestrator calls the differ, the
// state store and the two backend drivers; nothing calls back into it.
// The fleet state is mutated on a clone and persisted once, by the single
// orchestrating goroutine, even though connectivity probing fans out.
package orchestrator
