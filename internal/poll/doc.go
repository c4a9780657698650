// Package poll holds the authoritative in-memory poll registry.
//
// The poll map is guarded by a read-write lock; every poll carries its own mutex,
// so votes on one poll serialize while votes on different polls proceed in parallel.
package poll
