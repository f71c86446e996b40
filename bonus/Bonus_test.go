package bonus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/explorl/explorl/trajectory"
)

const testObsDim = 6

func testConfig() Config {
	return Config{
		ObsDim:     testObsDim,
		NumActions: 4,
		EmbedDim:   4,
		Ridge:      0.1,
		LR:         0.05,
		Visits:     NewVisitTable(testObsDim),
		Seed:       7,
	}
}

func oneHot(i int) []float64 {
	obs := make([]float64, testObsDim)
	obs[i] = 1
	return obs
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	_, err := New("quantum", testConfig())
	require.Error(t, err)
}

func TestNewCountNeedsVisitTable(t *testing.T) {
	cfg := testConfig()
	cfg.Visits = nil
	_, err := New("count", cfg)
	require.Error(t, err)
}

func TestNoneIsAlwaysZero(t *testing.T) {
	b, err := New("none", testConfig())
	require.NoError(t, err)
	require.Equal(t, "none", b.Name())
	require.Zero(t, b.Bonus(oneHot(0), 1, oneHot(1), b.NewEpisode()))
}

func TestVisitTableCounts(t *testing.T) {
	v := NewVisitTable(4)
	require.Zero(t, v.Distinct())

	require.Equal(t, uint64(1), v.Visit(2))
	require.Equal(t, uint64(2), v.Visit(2))
	require.Equal(t, uint64(1), v.Visit(0))
	require.Equal(t, 2, v.Distinct())

	snap := v.Snapshot()
	restored := NewVisitTable(4)
	restored.Restore(snap)
	require.Equal(t, uint64(2), restored.Count(2))
	require.Equal(t, 2, restored.Distinct())
}

func TestCountBonusIsInverseSqrt(t *testing.T) {
	cfg := testConfig()
	b, err := New("count", cfg)
	require.NoError(t, err)

	state := b.NewEpisode()
	for n := 1; n <= 9; n++ {
		cfg.Visits.Visit(3)
		got := b.Bonus(oneHot(0), 0, oneHot(3), state)
		require.InDelta(t, 1/math.Sqrt(float64(n)), got, 1e-12)
	}
}

func TestCuriosityErrorShrinksWithTraining(t *testing.T) {
	b, err := New("curiosity", testConfig())
	require.NoError(t, err)

	// One repeated transition in every batch cell
	batch := trajectory.NewBatch(4, 2, testObsDim, 4)
	for tt := 0; tt <= 4; tt++ {
		for col := 0; col < 2; col++ {
			src := oneHot(tt % testObsDim)
			copy(batch.ObsAt(tt, col), src)
			batch.Actions[tt*2+col] = 1
		}
	}

	before := b.Bonus(oneHot(0), 1, oneHot(1), nil)
	var last AuxLosses
	for i := 0; i < 200; i++ {
		last, err = b.Update(batch)
		require.NoError(t, err)
	}
	after := b.Bonus(oneHot(0), 1, oneHot(1), nil)

	require.Less(t, after, before,
		"training must reduce the prediction error")
	require.Contains(t, last, "forward_loss")
}

func TestRNDErrorShrinksWithTraining(t *testing.T) {
	b, err := New("rnd", testConfig())
	require.NoError(t, err)

	batch := trajectory.NewBatch(4, 2, testObsDim, 4)
	for tt := 0; tt <= 4; tt++ {
		for col := 0; col < 2; col++ {
			copy(batch.ObsAt(tt, col), oneHot(2))
		}
	}

	before := b.Bonus(nil, 0, oneHot(2), nil)
	for i := 0; i < 200; i++ {
		_, err = b.Update(batch)
		require.NoError(t, err)
	}
	after := b.Bonus(nil, 0, oneHot(2), nil)
	require.Less(t, after, before)

	// A state never trained on keeps a larger error
	unseen := b.Bonus(nil, 0, oneHot(5), nil)
	require.Greater(t, unseen, after)
}

func TestEpisodicDecaysWithinEpisodeAndResets(t *testing.T) {
	b, err := New("episodic", testConfig())
	require.NoError(t, err)

	state := b.NewEpisode()
	first := b.Bonus(nil, 0, oneHot(1), state)
	second := b.Bonus(nil, 0, oneHot(1), state)
	require.Positive(t, first)
	require.Less(t, second, first,
		"revisiting within an episode must pay less")

	fresh := b.Bonus(nil, 0, oneHot(1), b.NewEpisode())
	require.InDelta(t, first, fresh, 1e-9,
		"a new episode must restore the full bonus")
}

func TestEpisodicInverseDynamicsLossShrinks(t *testing.T) {
	b, err := New("episodic", testConfig())
	require.NoError(t, err)

	// A deterministic stream: one-hot states advancing one index per
	// step, always under action 1.
	batch := trajectory.NewBatch(4, 2, testObsDim, 4)
	for tt := 0; tt <= 4; tt++ {
		for col := 0; col < 2; col++ {
			copy(batch.ObsAt(tt, col), oneHot(tt%testObsDim))
			batch.Actions[tt*2+col] = 1
		}
	}

	first, err := b.Update(batch)
	require.NoError(t, err)
	require.Contains(t, first, "inverse_dynamics_loss")

	var last AuxLosses
	for i := 0; i < 200; i++ {
		last, err = b.Update(batch)
		require.NoError(t, err)
	}
	require.Less(t, last["inverse_dynamics_loss"],
		first["inverse_dynamics_loss"],
		"training must make the taken action more predictable")
}

func TestEpisodicUpdateSkipsEpisodeBoundaries(t *testing.T) {
	b, err := New("episodic", testConfig())
	require.NoError(t, err)

	// Every row starts a new episode, so no transition is usable
	batch := trajectory.NewBatch(4, 1, testObsDim, 4)
	for tt := 0; tt <= 4; tt++ {
		copy(batch.ObsAt(tt, 0), oneHot(tt%testObsDim))
		batch.Done.Set(tt, 0, 1)
	}

	losses, err := b.Update(batch)
	require.NoError(t, err)
	require.Zero(t, losses["inverse_dynamics_loss"])
}

func TestCombinedSumAndProduct(t *testing.T) {
	sum, err := New("rnd+episodic", testConfig())
	require.NoError(t, err)
	require.Equal(t, "rnd+episodic", sum.Name())

	prod, err := New("rndxepisodic", testConfig())
	require.NoError(t, err)

	rndOnly, err := New("rnd", testConfig())
	require.NoError(t, err)
	epiOnly, err := New("episodic", testConfig())
	require.NoError(t, err)

	obs := oneHot(3)
	r := rndOnly.Bonus(nil, 0, obs, nil)
	e := epiOnly.Bonus(nil, 0, obs, epiOnly.NewEpisode())

	require.InDelta(t, r+e, sum.Bonus(nil, 0, obs, sum.NewEpisode()),
		1e-9)
	require.InDelta(t, r*e, prod.Bonus(nil, 0, obs, prod.NewEpisode()),
		1e-9)
}

func TestCombinedRejectsNesting(t *testing.T) {
	_, err := New("count+rnd+episodic", testConfig())
	require.NoError(t, err, "flat three-way sums are fine")

	_, err = New("countxrnd+episodic", testConfig())
	require.Error(t, err, "mixing + and x nests variants")
}
