package learner

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/explorl/explorl/bonus"
	"github.com/explorl/explorl/policy"
	"github.com/explorl/explorl/pool"
	"github.com/explorl/explorl/tracker"
	"github.com/explorl/explorl/trajectory"
)

const (
	testObsDim = 4
	testA      = 3
	testUnroll = 4
)

// memSink buffers records in memory
type memSink struct {
	mu      sync.Mutex
	records []tracker.Record
}

func (m *memSink) Track(r tracker.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memSink) Close() error { return nil }

func TestComposeReward(t *testing.T) {
	extrinsic := []float64{0, 0, 1}
	bonuses := []float64{0.2, 0.3, 0.1}
	want := []float64{0.1, 0.15, 1.0}

	for i := range extrinsic {
		got := ComposeReward(extrinsic[i], bonuses[i], 0.5, 1)
		require.InDelta(t, want[i], got, 1e-12, "element %d", i)
	}

	require.Equal(t, -1.0, ComposeReward(-3, 0, 0.5, 1),
		"negative sums clip symmetrically")
	require.Equal(t, 5.0, ComposeReward(5, 0, 0.5, 0),
		"a non-positive clip disables clipping")
}

// The learning rate decays linearly to zero over the frame budget,
// including after a resume that preloads the frame counter.
func TestLearningRateDecaysLinearly(t *testing.T) {
	var frames, steps atomic.Int64
	l := New(Config{
		Frames:      &frames,
		Steps:       &steps,
		TotalFrames: 1000,
		LR:          0.01,
	})

	require.InDelta(t, 0.01, l.lr(), 1e-12)

	frames.Store(500)
	require.InDelta(t, 0.005, l.lr(), 1e-12)

	frames.Store(1000)
	require.Zero(t, l.lr())

	frames.Store(2000)
	require.Zero(t, l.lr(), "the rate never goes negative")
}

// fillSlot writes a plausible segment into an acquired slot the way an
// actor would.
func fillSlot(t *testing.T, p *pool.Pool, slots []*trajectory.Slot,
	model policy.Model) {
	t.Helper()

	idx, err := p.AcquireFree(context.Background())
	require.NoError(t, err)
	slot := slots[idx]

	logProb := -math.Log(testA)
	for row := 0; row <= testUnroll; row++ {
		obs := make([]float64, testObsDim)
		obs[row%testObsDim] = 1
		lp := make([]float64, testA)
		for a := range lp {
			lp[a] = logProb
		}
		slot.SetRow(row, trajectory.Row{
			Obs:      obs,
			Action:   row % testA,
			LogProbs: lp,
			Reward:   0.1,
			Bonus:    0.2,
			Done:     row == 0,
			RealDone: row == 0,
		})
	}
	slot.InitialState = model.InitialState()

	require.NoError(t, p.PublishFull(idx))
}

func TestAssemblerCopiesThenReleases(t *testing.T) {
	p := pool.New(3, 1)
	slots := trajectory.NewSlots(3, testUnroll, testObsDim, testA)
	model := policy.NewEchoState(testObsDim, 8, testA, 0, 1)

	fillSlot(t, p, slots, model)
	fillSlot(t, p, slots, model)

	a := NewAssembler(p, slots, 2)
	batch, err := a.Assemble(context.Background())
	require.NoError(t, err)
	require.Equal(t, testUnroll, batch.T)
	require.Equal(t, 2, batch.B)

	free, actor, full, learner := p.Counts()
	require.Equal(t, 3, free,
		"every slot must be back in the free queue before the batch is used")
	require.Zero(t, actor+full+learner)

	// The batch survives the release: its data is a copy
	require.Equal(t, 0.1, batch.Rewards.At(1, 0))
	require.Equal(t, 1.0, batch.ObsAt(1, 0)[1])
}

func TestAssemblerReleasesOnCancellation(t *testing.T) {
	p := pool.New(2, 1)
	slots := trajectory.NewSlots(2, testUnroll, testObsDim, testA)
	model := policy.NewEchoState(testObsDim, 8, testA, 0, 1)

	// Only one of the two required slots is published
	fillSlot(t, p, slots, model)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	a := NewAssembler(p, slots, 2)
	go func() {
		_, err := a.Assemble(ctx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("assemble did not observe cancellation")
	}

	free, _, _, learner := p.Counts()
	require.Equal(t, 2, free, "the acquired slot must be released")
	require.Zero(t, learner)
}

// One end-to-end learning step: assemble, correct, update, publish,
// count frames, and emit metrics.
func TestLearnerStepEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(),
		10*time.Second)
	defer cancel()

	const batchSize = 2
	p := pool.New(batchSize, 1)
	slots := trajectory.NewSlots(batchSize, testUnroll, testObsDim, testA)
	model := policy.NewEchoState(testObsDim, 8, testA, 0, 1)
	store := policy.NewStore(model.Clone())
	before := store.Snapshot()
	sink := &memSink{}

	for i := 0; i < batchSize; i++ {
		fillSlot(t, p, slots, model)
	}

	var frames, steps atomic.Int64
	l := New(Config{
		Assembler:     NewAssembler(p, slots, batchSize),
		Model:         model,
		Store:         store,
		Bonus:         bonus.None{},
		Mu:            &sync.Mutex{},
		Frames:        &frames,
		Steps:         &steps,
		TotalFrames:   int64(testUnroll * batchSize),
		LR:            0.01,
		Gamma:         0.99,
		RhoBar:        1,
		CBar:          1,
		BaselineCost:  0.5,
		EntropyCost:   0.001,
		MaxGradNorm:   40,
		IntrinsicCoef: 0.5,
		RewardClip:    1,
		Sink:          sink,
		Log:           zerolog.Nop(),
	})

	require.NoError(t, l.Run(ctx))
	require.Equal(t, int64(testUnroll*batchSize), frames.Load())
	require.Equal(t, int64(1), steps.Load())

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	require.Contains(t, rec.Fields, "pg_loss")
	require.Contains(t, rec.Fields, "total_loss")
	require.InDelta(t, 0.1, rec.Fields["mean_reward"], 1e-12)
	require.InDelta(t, 0.2, rec.Fields["mean_bonus"], 1e-12)
	require.InDelta(t, 0.2, rec.Fields["mean_total_reward"], 1e-12,
		"composed as extrinsic + coef*intrinsic")

	require.NotSame(t, before, store.Snapshot(),
		"a fresh snapshot must be published after the update")

	free, _, _, _ := p.Counts()
	require.Equal(t, batchSize, free)
}
