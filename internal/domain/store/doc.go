// Package store owns per-widget output state: processing status, the
// in-progress stub, and a capped newest-first history of results.
//
// Invariants enforced here, at the single mutation entry point:
//   - single-flight: at most one active request per widget kind; a new
//     request supersedes the old one, whose id becomes invalid
//   - stale discard: events whose request id does not match the
//     widget's active request are dropped silently
//   - at most one item per kind is streaming at any moment
//   - history is capacity-bounded; the streaming item is never evicted
//
// All state is in-memory and owned by one session-scoped Store; readers
// only ever receive copies.
package store
