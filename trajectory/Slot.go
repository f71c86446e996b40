// Package trajectory implements the fixed-capacity trajectory segment
// records shared between actors and learners, and the batches stacked
// from them.
package trajectory

// Slot holds one trajectory segment of T environment steps plus one
// bootstrap row, as a struct of flat arrays. Row 0 is the boundary
// step: the last environment output of the previous segment written
// into this slot's stream, together with the agent output computed at
// that step. Rows 1..T hold the current segment. The learner pairs the
// agent output at row t+1 (action chosen at the observation in row t)
// with target-policy outputs recomputed at row t.
//
// A Slot has exactly one owner at any time; the pool's index queues
// enforce the hand-off, so none of the fields need locking.
type Slot struct {
	unroll     int
	obsDim     int
	numActions int

	Obs      []float64 // (T+1) x obsDim
	Actions  []int     // T+1
	LogProbs []float64 // (T+1) x numActions, behavior log-probabilities
	Values   []float64 // T+1, behavior value estimates
	Rewards  []float64 // T+1, extrinsic
	Bonuses  []float64 // T+1, intrinsic
	Done     []bool    // T+1, terminated or truncated
	RealDone []bool    // T+1, true termination only

	// Per-row episode accumulators, written by the owning actor
	EpisodeReturns []float64
	EpisodeSteps   []int
	EpisodeWins    []bool
	VisitedStates  []int

	// Recurrent state snapshots captured once at the start of the
	// segment, not per timestep.
	InitialState     []float64
	InitialExplState []float64 // nil when no exploration model is active
}

// NewSlot allocates a Slot for segments of unroll steps with the given
// observation and action space sizes.
func NewSlot(unroll, obsDim, numActions int) *Slot {
	rows := unroll + 1
	return &Slot{
		unroll:         unroll,
		obsDim:         obsDim,
		numActions:     numActions,
		Obs:            make([]float64, rows*obsDim),
		Actions:        make([]int, rows),
		LogProbs:       make([]float64, rows*numActions),
		Values:         make([]float64, rows),
		Rewards:        make([]float64, rows),
		Bonuses:        make([]float64, rows),
		Done:           make([]bool, rows),
		RealDone:       make([]bool, rows),
		EpisodeReturns: make([]float64, rows),
		EpisodeSteps:   make([]int, rows),
		EpisodeWins:    make([]bool, rows),
		VisitedStates:  make([]int, rows),
	}
}

// NewSlots allocates a full arena of n Slots
func NewSlots(n, unroll, obsDim, numActions int) []*Slot {
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = NewSlot(unroll, obsDim, numActions)
	}
	return slots
}

// Unroll returns the number of environment steps per segment
func (s *Slot) Unroll() int { return s.unroll }

// ObsDim returns the observation size
func (s *Slot) ObsDim() int { return s.obsDim }

// NumActions returns the action space size
func (s *Slot) NumActions() int { return s.numActions }

// ObsRow returns the observation stored at the given row. The returned
// slice aliases the slot's backing array.
func (s *Slot) ObsRow(row int) []float64 {
	return s.Obs[row*s.obsDim : (row+1)*s.obsDim]
}

// LogProbRow returns the behavior log-probability vector at the given
// row. The returned slice aliases the slot's backing array.
func (s *Slot) LogProbRow(row int) []float64 {
	return s.LogProbs[row*s.numActions : (row+1)*s.numActions]
}

// Row is the data written into one slot row by an actor
type Row struct {
	Obs           []float64
	Action        int
	LogProbs      []float64
	Value         float64
	Reward        float64
	Bonus         float64
	Done          bool
	RealDone      bool
	EpisodeReturn float64
	EpisodeStep   int
	EpisodeWin    bool
	VisitedStates int
}

// SetRow writes one timestep into the slot
func (s *Slot) SetRow(row int, r Row) {
	copy(s.ObsRow(row), r.Obs)
	copy(s.LogProbRow(row), r.LogProbs)
	s.Actions[row] = r.Action
	s.Values[row] = r.Value
	s.Rewards[row] = r.Reward
	s.Bonuses[row] = r.Bonus
	s.Done[row] = r.Done
	s.RealDone[row] = r.RealDone
	s.EpisodeReturns[row] = r.EpisodeReturn
	s.EpisodeSteps[row] = r.EpisodeStep
	s.EpisodeWins[row] = r.EpisodeWin
	s.VisitedStates[row] = r.VisitedStates
}
