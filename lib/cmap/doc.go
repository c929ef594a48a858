// Package cmap implements the deterministic consistent-map state machine
// that backs the replicated map primitive.
//
// The Service owns one cohesive state: the versioned entries, the map-wide
// version counter, the transaction table with its per-key write locks, the
// frozen iterator snapshots and the listener sessions. Commands mutate this
// state through plain methods with no internal locking; determinism comes
// from feeding every replica the same serialized command stream (a consensus
// log, or a single mutex for the embedded case) and from iterating keys in
// sorted order wherever a collection is produced.
//
// Single-key writes are compare-and-set operations that report their outcome
// as a typed UpdateStatus instead of an error: NOOP and PRECONDITION_FAILED
// are normal results of optimistic concurrency, not failures. Multi-key
// atomicity uses a two-phase protocol (Begin, Prepare, Commit/Rollback, or
// the single-shot PrepareAndCommit) where Prepare validates all updates
// against the current state and write-locks their keys until resolution.
//
// Change events are handed to a pluggable EventSink in commit order at the
// log slot where the change is applied; delivery beyond the sink is
// best-effort and the transport's concern.
package cmap
