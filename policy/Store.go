package policy

import "sync/atomic"

// Store publishes immutable parameter snapshots from the learner to
// the actor workers. Publish swaps in a whole Model atomically; actors
// read whatever snapshot is current when a segment starts and keep
// using it for the entire segment, so a segment is always collected
// under a single, possibly stale, behavior policy.
type Store struct {
	current atomic.Value // Model
}

// NewStore creates a store seeded with an initial snapshot
func NewStore(m Model) *Store {
	s := &Store{}
	s.current.Store(&m)
	return s
}

// Publish replaces the current snapshot. The caller must not mutate
// the model after publishing it.
func (s *Store) Publish(m Model) {
	s.current.Store(&m)
}

// Snapshot returns the current snapshot
func (s *Store) Snapshot() Model {
	return *s.current.Load().(*Model)
}
