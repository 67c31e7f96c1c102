// Package fleet defines the core data model for fleet reconciliation:
// declared node specs, last-known node state, and the delta between them.
//
// Everything in this package is pure data and pure functions. Side effects
// (cloud calls, state persistence, configuration runs) live behind the
// driver interfaces in internal/provision and internal/configure.
package fleet
