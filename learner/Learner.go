package learner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/explorl/explorl/bonus"
	"github.com/explorl/explorl/policy"
	"github.com/explorl/explorl/tracker"
	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/utils/floatutils"
	"github.com/explorl/explorl/vtrace"
)

// Config wires one learner loop into the shared training state.
// Several loops may run concurrently; they share Mu, Frames, and Steps
// so exactly one of them mutates the model at a time and the frame
// budget is counted once.
type Config struct {
	Assembler *Assembler
	Model     policy.Trainable
	Store     *policy.Store
	ExplModel policy.Model // frozen, nil when inactive
	Bonus     bonus.Bonus

	// Mu serializes unroll, update, and snapshot publication
	Mu     *sync.Mutex
	Frames *atomic.Int64
	Steps  *atomic.Int64

	TotalFrames int64

	LR           float64 // initial; decays linearly to zero
	Gamma        float64
	RhoBar       float64
	CBar         float64
	BaselineCost float64
	EntropyCost  float64
	MaxGradNorm  float64

	// IntrinsicCoef scales bonuses into the composed reward;
	// RewardClip bounds the composed reward symmetrically, zero
	// disables clipping.
	IntrinsicCoef float64
	RewardClip    float64

	Sink tracker.Sink
	Log  zerolog.Logger
}

// Learner repeatedly assembles a batch, corrects it with V-trace,
// updates the model, and publishes a fresh snapshot for the actors.
type Learner struct {
	cfg Config
}

// New creates a learner loop
func New(cfg Config) *Learner {
	return &Learner{cfg: cfg}
}

// Run drives learning steps until the frame budget is spent or the
// context is canceled. A numerically degenerate correction is returned
// as an error and halts the run.
func (l *Learner) Run(ctx context.Context) error {
	for l.cfg.Frames.Load() < l.cfg.TotalFrames {
		if err := l.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// step runs one full learning step
func (l *Learner) step(ctx context.Context) error {
	batch, err := l.cfg.Assembler.Assemble(ctx)
	if err != nil {
		return err
	}

	T, B := batch.T, batch.B
	A := batch.NumActions()

	rewards := mat.NewDense(T, B, nil)
	discounts := mat.NewDense(T, B, nil)
	for t := 0; t < T; t++ {
		for col := 0; col < B; col++ {
			rewards.Set(t, col, ComposeReward(
				batch.Rewards.At(t+1, col), batch.Bonuses.At(t+1, col),
				l.cfg.IntrinsicCoef, l.cfg.RewardClip))
			discounts.Set(t, col,
				l.cfg.Gamma*(1-batch.RealDone.At(t+1, col)))
		}
	}

	var explLogits []float64
	if l.cfg.ExplModel != nil {
		explOut, err := l.cfg.ExplModel.Unroll(batch,
			batch.InitialExplStates, nil)
		if err != nil {
			return fmt.Errorf("step: exploration unroll: %w", err)
		}
		explLogits = explOut.Logits
	}

	l.cfg.Mu.Lock()
	out, err := l.cfg.Model.Unroll(batch, batch.InitialStates, explLogits)
	if err != nil {
		l.cfg.Mu.Unlock()
		return fmt.Errorf("step: unroll: %w", err)
	}

	values := mat.NewDense(T, B, nil)
	bootstrap := make([]float64, B)
	for col := 0; col < B; col++ {
		for t := 0; t < T; t++ {
			values.Set(t, col, out.Values.At(t, col))
		}
		bootstrap[col] = out.Values.At(T, col)
	}

	returns, err := vtrace.FromLogits(T, B, A,
		out.Logits[:T*B*A],
		batch.BehaviorLogProbs(),
		batch.Actions[B:],
		discounts, rewards, values, bootstrap,
		l.cfg.RhoBar, l.cfg.CBar)
	if err != nil {
		l.cfg.Mu.Unlock()
		return fmt.Errorf("step: %w", err)
	}

	lr := l.lr()
	losses, err := l.cfg.Model.Update(policy.UpdateInput{
		Batch:        batch,
		Output:       out,
		Returns:      returns,
		LR:           lr,
		BaselineCost: l.cfg.BaselineCost,
		EntropyCost:  l.cfg.EntropyCost,
		MaxGradNorm:  l.cfg.MaxGradNorm,
	})
	if err != nil {
		l.cfg.Mu.Unlock()
		return fmt.Errorf("step: update: %w", err)
	}

	l.cfg.Store.Publish(l.cfg.Model.Clone())
	l.cfg.Mu.Unlock()

	aux, err := l.cfg.Bonus.Update(batch)
	if err != nil {
		return fmt.Errorf("step: bonus update: %w", err)
	}

	frames := l.cfg.Frames.Add(int64(T * B))
	step := l.cfg.Steps.Add(1)

	record := l.record(batch, losses, aux, frames, step, lr)
	if err := l.cfg.Sink.Track(record); err != nil {
		return fmt.Errorf("step: track: %w", err)
	}
	return nil
}

// lr returns the current learning rate, decayed linearly over the
// frame budget.
func (l *Learner) lr() float64 {
	remaining := 1 - float64(l.cfg.Frames.Load())/float64(l.cfg.TotalFrames)
	if remaining < 0 {
		remaining = 0
	}
	return l.cfg.LR * remaining
}

// record summarizes one step for the metrics sinks
func (l *Learner) record(batch *trajectory.Batch, losses policy.Losses,
	aux bonus.AuxLosses, frames, step int64, lr float64) tracker.Record {

	total := losses.PG + losses.Baseline*l.cfg.BaselineCost +
		losses.Entropy*l.cfg.EntropyCost
	fields := map[string]float64{
		"pg_loss":       losses.PG,
		"baseline_loss": losses.Baseline * l.cfg.BaselineCost,
		"entropy_loss":  losses.Entropy * l.cfg.EntropyCost,
		"lr":            lr,
	}
	for k, v := range aux {
		fields[k] = v
		total += v
	}
	fields["total_loss"] = total

	episodes, totalReturn, totalSteps, wins := 0, 0.0, 0.0, 0.0
	meanReward, meanBonus, meanTotal, visited := 0.0, 0.0, 0.0, 0.0
	for t := 1; t <= batch.T; t++ {
		for col := 0; col < batch.B; col++ {
			reward := batch.Rewards.At(t, col)
			intrinsic := batch.Bonuses.At(t, col)
			meanReward += reward
			meanBonus += intrinsic
			meanTotal += ComposeReward(reward, intrinsic,
				l.cfg.IntrinsicCoef, l.cfg.RewardClip)
			if v := batch.VisitedStates.At(t, col); v > visited {
				visited = v
			}
			if batch.Done.At(t, col) == 1 {
				episodes++
				totalReturn += batch.EpisodeReturns.At(t, col)
				totalSteps += batch.EpisodeSteps.At(t, col)
				wins += batch.EpisodeWins.At(t, col)
			}
		}
	}
	count := float64(batch.T * batch.B)
	fields["mean_reward"] = meanReward / count
	fields["mean_bonus"] = meanBonus / count
	fields["mean_total_reward"] = meanTotal / count
	fields["visited_states"] = visited
	fields["episodes"] = float64(episodes)
	if episodes > 0 {
		fields["episode_return"] = totalReturn / float64(episodes)
		fields["episode_steps"] = totalSteps / float64(episodes)
		fields["win_rate"] = wins / float64(episodes)
	}

	return tracker.Record{Frames: frames, Step: step, Fields: fields}
}

// ComposeReward combines an extrinsic reward with a scaled intrinsic
// bonus and clips the sum to [-clip, clip]. A non-positive clip
// disables clipping.
func ComposeReward(extrinsic, bonus, coef, clip float64) float64 {
	composed := extrinsic + coef*bonus
	if clip <= 0 {
		return composed
	}
	return floatutils.Clip(composed, -clip, clip)
}
