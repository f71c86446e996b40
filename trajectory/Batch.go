package trajectory

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Batch is an ephemeral stack of B slot contents along a new leading
// batch dimension, time-major: scalar fields are (T+1) x B matrices,
// observation and log-probability blocks are (T+1, B, dim) tensors.
// A Batch owns copies of the slot data; the slots themselves are
// returned to the free queue before the Batch is used.
type Batch struct {
	T          int
	B          int
	obsDim     int
	numActions int

	Obs      *tensor.Dense // (T+1, B, obsDim)
	LogProbs *tensor.Dense // (T+1, B, numActions)

	Actions []int // (T+1)*B, time-major

	Values   *mat.Dense // (T+1) x B
	Rewards  *mat.Dense
	Bonuses  *mat.Dense
	Done     *mat.Dense // 0/1
	RealDone *mat.Dense // 0/1

	EpisodeReturns *mat.Dense
	EpisodeSteps   *mat.Dense
	EpisodeWins    *mat.Dense // 0/1
	VisitedStates  *mat.Dense

	InitialStates     [][]float64
	InitialExplStates [][]float64
}

// NewBatch allocates an empty batch for B segments of unroll steps
func NewBatch(unroll, batchSize, obsDim, numActions int) *Batch {
	rows := unroll + 1

	return &Batch{
		T:          unroll,
		B:          batchSize,
		obsDim:     obsDim,
		numActions: numActions,

		Obs: tensor.New(tensor.Of(tensor.Float64),
			tensor.WithShape(rows, batchSize, obsDim)),
		LogProbs: tensor.New(tensor.Of(tensor.Float64),
			tensor.WithShape(rows, batchSize, numActions)),

		Actions: make([]int, rows*batchSize),

		Values:   mat.NewDense(rows, batchSize, nil),
		Rewards:  mat.NewDense(rows, batchSize, nil),
		Bonuses:  mat.NewDense(rows, batchSize, nil),
		Done:     mat.NewDense(rows, batchSize, nil),
		RealDone: mat.NewDense(rows, batchSize, nil),

		EpisodeReturns: mat.NewDense(rows, batchSize, nil),
		EpisodeSteps:   mat.NewDense(rows, batchSize, nil),
		EpisodeWins:    mat.NewDense(rows, batchSize, nil),
		VisitedStates:  mat.NewDense(rows, batchSize, nil),

		InitialStates:     make([][]float64, batchSize),
		InitialExplStates: make([][]float64, batchSize),
	}
}

// ObsDim returns the observation size
func (b *Batch) ObsDim() int { return b.obsDim }

// NumActions returns the action space size
func (b *Batch) NumActions() int { return b.numActions }

// SetColumn copies one slot's contents into batch column col
func (b *Batch) SetColumn(col int, s *Slot) error {
	if s.Unroll() != b.T || s.ObsDim() != b.obsDim ||
		s.NumActions() != b.numActions {
		return fmt.Errorf("setColumn: slot shape (%d, %d, %d) does not "+
			"match batch shape (%d, %d, %d)", s.Unroll(), s.ObsDim(),
			s.NumActions(), b.T, b.obsDim, b.numActions)
	}

	for t := 0; t <= b.T; t++ {
		copy(b.ObsAt(t, col), s.ObsRow(t))
		copy(b.LogProbsAt(t, col), s.LogProbRow(t))
		b.Actions[t*b.B+col] = s.Actions[t]

		b.Values.Set(t, col, s.Values[t])
		b.Rewards.Set(t, col, s.Rewards[t])
		b.Bonuses.Set(t, col, s.Bonuses[t])
		b.Done.Set(t, col, boolToFloat(s.Done[t]))
		b.RealDone.Set(t, col, boolToFloat(s.RealDone[t]))

		b.EpisodeReturns.Set(t, col, s.EpisodeReturns[t])
		b.EpisodeSteps.Set(t, col, float64(s.EpisodeSteps[t]))
		b.EpisodeWins.Set(t, col, boolToFloat(s.EpisodeWins[t]))
		b.VisitedStates.Set(t, col, float64(s.VisitedStates[t]))
	}

	b.InitialStates[col] = append([]float64(nil), s.InitialState...)
	if s.InitialExplState != nil {
		b.InitialExplStates[col] = append([]float64(nil),
			s.InitialExplState...)
	}
	return nil
}

// sliceData returns the data of one contiguous tensor slice as a view
// into the tensor's backing array. Slicing with in-range indices
// cannot fail.
func sliceData(t *tensor.Dense, slices ...tensor.Slice) []float64 {
	view, err := t.Slice(slices...)
	if err != nil {
		panic(fmt.Sprintf("trajectory: slice: %v", err))
	}
	return view.Data().([]float64)
}

// ObsAt returns the observation at (t, col) as a view into the Obs
// tensor.
func (b *Batch) ObsAt(t, col int) []float64 {
	return sliceData(b.Obs, tensor.S(t), tensor.S(col))
}

// LogProbsAt returns the behavior log-probability vector at (t, col)
// as a view into the LogProbs tensor.
func (b *Batch) LogProbsAt(t, col int) []float64 {
	return sliceData(b.LogProbs, tensor.S(t), tensor.S(col))
}

// BehaviorLogProbs returns the behavior log-probabilities of rows
// 1..T as one flat time-major (T, B, numActions) block, a view into
// the LogProbs tensor. Row 0 is the boundary step; its action was
// taken in the previous segment.
func (b *Batch) BehaviorLogProbs() []float64 {
	return sliceData(b.LogProbs, tensor.S(1, b.T+1))
}

// Action returns the action stored at (t, col)
func (b *Batch) Action(t, col int) int {
	return b.Actions[t*b.B+col]
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
