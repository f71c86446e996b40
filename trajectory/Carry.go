package trajectory

// CarryTable holds one persistent recurrent state per slot index: the
// hidden state the policy had at the end of the previous segment
// written into that slot, replayed as the start state for the next
// segment. Entries are created once at startup and mutated in place by
// whichever worker currently owns the corresponding slot; the pool's
// ownership hand-off is what makes per-index access exclusive, so the
// table itself carries no locks.
type CarryTable struct {
	states [][]float64
}

// NewCarryTable creates a table of n entries, each initialized with a
// fresh copy produced by initial.
func NewCarryTable(n int, initial func() []float64) *CarryTable {
	states := make([][]float64, n)
	for i := range states {
		states[i] = initial()
	}
	return &CarryTable{states: states}
}

// Get returns a copy of the carried state for a slot index
func (c *CarryTable) Get(idx int) []float64 {
	state := make([]float64, len(c.states[idx]))
	copy(state, c.states[idx])
	return state
}

// Set overwrites the carried state for a slot index
func (c *CarryTable) Set(idx int, state []float64) {
	copy(c.states[idx], state)
}

// Len returns the number of entries in the table
func (c *CarryTable) Len() int { return len(c.states) }
