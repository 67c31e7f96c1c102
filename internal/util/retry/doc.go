// Package retry provides a bounded-retry helper for polling external
// systems. It supports constant or exponentially increasing intervals and
// an optional per-attempt timeout distinct from the caller's overall
// deadline.
package retry
