// Package tracker implements metrics sinks for training runs: a
// structured-log sink, a CSV/JSON file sink, a plotting sink, and a
// fan-out combining them. Sinks consume flat records so the training
// loop never depends on how metrics are persisted.
package tracker

import (
	"sort"
)

// Record is one metrics emission, keyed by the cumulative environment
// frame count at the time it was produced.
type Record struct {
	Frames int64
	Step   int64
	Fields map[string]float64
}

// Keys returns the record's field names in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sink consumes metrics records. Track is called from the learner
// loop; implementations must not block on slow I/O longer than
// necessary. Close flushes and releases resources.
type Sink interface {
	Track(Record) error
	Close() error
}

// Multi fans every record out to several sinks
type Multi []Sink

// Track forwards the record to every sink, stopping at the first error
func (m Multi) Track(r Record) error {
	for _, s := range m {
		if err := s.Track(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the first error seen
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
