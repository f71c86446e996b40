package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/utils/floatutils"
	"github.com/explorl/explorl/vtrace"
)

const (
	testObsDim = 5
	testHidden = 8
	testA      = 3
)

func randomBatch(t *testing.T, unroll, batchSize int,
	m Model) *trajectory.Batch {
	t.Helper()

	rng := rand.New(rand.NewSource(99))
	b := trajectory.NewBatch(unroll, batchSize, testObsDim, testA)
	for tt := 0; tt <= unroll; tt++ {
		for col := 0; col < batchSize; col++ {
			obs := b.ObsAt(tt, col)
			obs[rng.Intn(testObsDim)] = 1
			lp := b.LogProbsAt(tt, col)
			for a := range lp {
				lp[a] = -1.0986 // ~log(1/3)
			}
			b.Actions[tt*batchSize+col] = rng.Intn(testA)
		}
	}
	for col := 0; col < batchSize; col++ {
		b.InitialStates[col] = m.InitialState()
	}
	return b
}

// Unrolling a batch column must produce exactly the outputs of
// stepping through the same observations one at a time.
func TestUnrollMatchesStepSequence(t *testing.T) {
	const unroll = 4
	m := NewEchoState(testObsDim, testHidden, testA, 0, 5)
	b := randomBatch(t, unroll, 2, m)

	out, err := m.Unroll(b, b.InitialStates, nil)
	require.NoError(t, err)

	for col := 0; col < b.B; col++ {
		state := m.InitialState()
		for tt := 0; tt <= unroll; tt++ {
			logits, value, next := m.Step(b.ObsAt(tt, col), state, nil)
			state = next

			start := (tt*b.B + col) * testA
			require.Equal(t, logits, out.Logits[start:start+testA],
				"timestep %d column %d", tt, col)
			require.Equal(t, value, out.Values.At(tt, col))
		}
	}
}

func TestUnrollRejectsBadShapes(t *testing.T) {
	m := NewEchoState(testObsDim, testHidden, testA, 0, 5)
	b := randomBatch(t, 2, 1, m)

	_, err := m.Unroll(b, nil, nil)
	require.Error(t, err)

	b.InitialStates[0] = []float64{1}
	_, err = m.Unroll(b, b.InitialStates, nil)
	require.Error(t, err)
}

func TestExplorationLogitsShiftThePolicy(t *testing.T) {
	m := NewEchoState(testObsDim, testHidden, testA, 2, 5)
	obs := make([]float64, testObsDim)
	obs[0] = 1

	expl := []float64{10, 0, 0}
	plain, _, _ := m.Step(obs, m.InitialState(), nil)
	blended, _, _ := m.Step(obs, m.InitialState(), expl)

	require.InDelta(t, plain[0]+20, blended[0], 1e-12)
	require.Equal(t, plain[1], blended[1])
}

// One update step on a batch with positive advantages for one action
// must leave the parameters finite and actually move the readout.
func TestUpdateMovesReadout(t *testing.T) {
	const unroll = 4
	m := NewEchoState(testObsDim, testHidden, testA, 0, 5)
	b := randomBatch(t, unroll, 2, m)

	out, err := m.Unroll(b, b.InitialStates, nil)
	require.NoError(t, err)

	vs := mat.NewDense(unroll, b.B, nil)
	adv := mat.NewDense(unroll, b.B, nil)
	for tt := 0; tt < unroll; tt++ {
		for col := 0; col < b.B; col++ {
			vs.Set(tt, col, 1)
			adv.Set(tt, col, 0.5)
		}
	}

	before := append([]float64(nil), m.wout...)
	losses, err := m.Update(UpdateInput{
		Batch:        b,
		Output:       out,
		Returns:      &vtrace.Returns{Vs: vs, PGAdvantages: adv},
		LR:           0.01,
		BaselineCost: 0.5,
		EntropyCost:  0.001,
		MaxGradNorm:  40,
	})
	require.NoError(t, err)
	require.NotEqual(t, before, m.wout)
	require.True(t, floatutils.AllFinite(m.wout))
	require.True(t, floatutils.Finite(losses.PG))
	require.Positive(t, losses.Baseline)
}

func TestGobRoundTripPreservesBehavior(t *testing.T) {
	m := NewEchoState(testObsDim, testHidden, testA, 0.5, 5)

	data, err := m.GobEncode()
	require.NoError(t, err)

	restored := &EchoState{}
	require.NoError(t, restored.GobDecode(data))
	require.Equal(t, m.HiddenSize(), restored.HiddenSize())

	obs := make([]float64, testObsDim)
	obs[2] = 1
	wantLogits, wantValue, _ := m.Step(obs, m.InitialState(), nil)
	gotLogits, gotValue, _ := restored.Step(obs, restored.InitialState(),
		nil)
	require.Equal(t, wantLogits, gotLogits)
	require.Equal(t, wantValue, gotValue)
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewEchoState(testObsDim, testHidden, testA, 0, 5)
	clone := m.Clone().(*EchoState)

	m.wout[0] += 1
	require.NotEqual(t, m.wout[0], clone.wout[0])
}

func TestStorePublishesLatestSnapshot(t *testing.T) {
	first := NewEchoState(testObsDim, testHidden, testA, 0, 1)
	second := NewEchoState(testObsDim, testHidden, testA, 0, 2)

	s := NewStore(first)
	require.Same(t, first, s.Snapshot())

	s.Publish(second)
	require.Same(t, second, s.Snapshot())
}
