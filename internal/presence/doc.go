// Package presence holds the convergent peer-presence set reconciled by
// contracts when they receive broadcast state from other replicas.
//
// A State maps peer names to the last time each peer was seen. Two replicas
// reconcile with Merge, which keeps the newest timestamp per name and drops
// anything older than the time-to-live. Merge is commutative and idempotent
// for a fixed now, so deliveries may arrive in any order and be repeated.
//
// Merge performs no I/O, takes no locks, and never fails. A State has a
// single logical owner; callers that receive concurrent deliveries serialize
// them before merging (see the engine package).
package presence
