package bonus

import (
	"math"
	"sync"

	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/utils/floatutils"
)

// VisitTable counts visits per discrete state across all actors. It is
// shared: actors record into it concurrently while metrics and the
// count bonus read it.
type VisitTable struct {
	mu       sync.Mutex
	counts   []uint64
	distinct int
}

// NewVisitTable creates a table over n discrete states
func NewVisitTable(n int) *VisitTable {
	return &VisitTable{counts: make([]uint64, n)}
}

// Visit records one visit to a state and returns its new count
func (v *VisitTable) Visit(state int) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.counts[state] == 0 {
		v.distinct++
	}
	v.counts[state]++
	return v.counts[state]
}

// Count returns the visit count of a state
func (v *VisitTable) Count(state int) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[state]
}

// Distinct returns how many states have been visited at least once
func (v *VisitTable) Distinct() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.distinct
}

// Snapshot returns a copy of the counts, for checkpointing
func (v *VisitTable) Snapshot() []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint64(nil), v.counts...)
}

// Restore replaces the counts with a checkpointed snapshot
func (v *VisitTable) Restore(counts []uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	copy(v.counts, counts)
	v.distinct = 0
	for _, c := range v.counts {
		if c > 0 {
			v.distinct++
		}
	}
}

// Count is the count-based bonus 1/sqrt(N(s)) over the shared visit
// table. The collection loop records the visit for the current step
// before asking for the bonus, so N(s) is always at least one.
type Count struct {
	visits *VisitTable
}

// Name returns the variant name
func (*Count) Name() string { return "count" }

// NewEpisode returns nil; counts persist across episodes
func (*Count) NewEpisode() State { return nil }

// Bonus returns 1/sqrt(N(s)) for the arrived-at state. Observations
// are one-hot, so the state index is the argmax.
func (c *Count) Bonus(prev []float64, action int, obs []float64,
	state State) float64 {

	n := c.visits.Count(floatutils.ArgMax(obs))
	if n == 0 {
		return 1
	}
	return 1 / math.Sqrt(float64(n))
}

// Update is a no-op; the table is maintained by the collection loop
func (*Count) Update(*trajectory.Batch) (AuxLosses, error) {
	return AuxLosses{}, nil
}
