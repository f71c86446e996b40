// Package experiment orchestrates a training run: it builds the shared
// training state from a configuration, spawns the actor and learner
// goroutines, supervises them, and shuts the run down in order.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/explorl/explorl/actor"
	"github.com/explorl/explorl/bonus"
	"github.com/explorl/explorl/config"
	"github.com/explorl/explorl/environment"
	"github.com/explorl/explorl/environment/gridworld"
	"github.com/explorl/explorl/experiment/checkpointer"
	"github.com/explorl/explorl/learner"
	"github.com/explorl/explorl/policy"
	"github.com/explorl/explorl/pool"
	"github.com/explorl/explorl/tracker"
	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/utils/progressbar"
)

// ErrInterrupted reports that the run was stopped by an external
// signal rather than by spending its frame budget. The run still
// checkpoints and drains before returning it.
var ErrInterrupted = errors.New("experiment: interrupted")

// How long the shutdown waits for actors to honor their stop sentinels
// before cancelling them.
const drainTimeout = 10 * time.Second

// Experiment is one configured training run
type Experiment struct {
	cfg  config.Config
	log  zerolog.Logger
	sink tracker.Sink

	model  policy.Trainable
	visits *bonus.VisitTable
	frames atomic.Int64
	steps  atomic.Int64
	mu     sync.Mutex
}

// New creates an experiment. The sink receives the learner's metrics;
// the caller closes it after Run returns.
func New(cfg config.Config, log zerolog.Logger,
	sink tracker.Sink) *Experiment {
	return &Experiment{cfg: cfg, log: log, sink: sink}
}

// RunDir returns the directory holding the run's artifacts
func (e *Experiment) RunDir() string {
	return filepath.Join(e.cfg.SaveDir, e.cfg.RunID)
}

// Run executes the experiment until the frame budget is spent, a fatal
// error occurs, or the context is canceled.
func (e *Experiment) Run(ctx context.Context) error {
	cfg := e.cfg

	var builder environment.Builder = func(id int) (
		environment.Environment, error) {
		return gridworld.New(gridworld.Config{
			Rooms:     cfg.Rooms,
			RoomSize:  cfg.RoomSize,
			StepLimit: cfg.StepLimit,
			Seed:      cfg.Seed + uint64(id),
		})
	}
	envs := make([]environment.Environment, cfg.NumActors)
	for i := range envs {
		env, err := builder(i)
		if err != nil {
			return fmt.Errorf("run: could not build environment %d: %w",
				i, err)
		}
		envs[i] = env
	}

	obsDim := envs[0].ObservationSpec().Size()
	numActions := environment.NumActions(envs[0])

	explModel, err := e.loadExplModel()
	if err != nil {
		return err
	}
	explWeight := 0.0
	if explModel != nil {
		explWeight = cfg.ExplWeight
	}

	e.model = policy.NewEchoState(obsDim, cfg.Hidden, numActions,
		explWeight, cfg.Seed)
	e.visits = bonus.NewVisitTable(obsDim)

	if cfg.Checkpoint != "" {
		if err := e.resume(cfg.Checkpoint); err != nil {
			return err
		}
	}

	variant, err := bonus.New(cfg.Bonus, bonus.Config{
		ObsDim:     obsDim,
		NumActions: numActions,
		EmbedDim:   cfg.EmbedDim,
		Ridge:      cfg.Ridge,
		LR:         cfg.BonusLR,
		Visits:     e.visits,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	slotPool := pool.New(cfg.NumSlots, cfg.NumActors)
	slots := trajectory.NewSlots(cfg.NumSlots, cfg.Unroll, obsDim,
		numActions)
	carry := trajectory.NewCarryTable(cfg.NumSlots, e.model.InitialState)
	var explCarry *trajectory.CarryTable
	if explModel != nil {
		explCarry = trajectory.NewCarryTable(cfg.NumSlots,
			explModel.InitialState)
	}
	store := policy.NewStore(e.model.Clone())

	if err := os.MkdirAll(e.RunDir(), 0o755); err != nil {
		return fmt.Errorf("run: could not create run directory: %w", err)
	}
	ckpt := checkpointer.New(filepath.Join(e.RunDir(), "model.ckpt"),
		cfg.CheckpointInterval)

	e.log.Info().Str("run", cfg.RunID).Str("bonus", variant.Name()).
		Int("actors", cfg.NumActors).Int("learners", cfg.NumLearners).
		Int("slots", cfg.NumSlots).Int64("frames", cfg.TotalFrames).
		Msg("starting run")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	actorErrs := make(chan error, cfg.NumActors)
	for i := 0; i < cfg.NumActors; i++ {
		w := actor.New(actor.Config{
			ID:        i,
			Env:       envs[i],
			Pool:      slotPool,
			Slots:     slots,
			Carry:     carry,
			ExplCarry: explCarry,
			Store:     store,
			ExplModel: explModel,
			Bonus:     variant,
			Visits:    e.visits,
			Seed:      cfg.Seed + uint64(cfg.NumActors+i),
			Log:       e.log,
		})
		go func() { actorErrs <- w.Run(ctx) }()
	}

	assembler := learner.NewAssembler(slotPool, slots, cfg.BatchSize)
	learnErrs := make(chan error, cfg.NumLearners)
	for i := 0; i < cfg.NumLearners; i++ {
		l := learner.New(learner.Config{
			Assembler:     assembler,
			Model:         e.model,
			Store:         store,
			ExplModel:     explModel,
			Bonus:         variant,
			Mu:            &e.mu,
			Frames:        &e.frames,
			Steps:         &e.steps,
			TotalFrames:   cfg.TotalFrames,
			LR:            cfg.LR,
			Gamma:         cfg.Gamma,
			RhoBar:        cfg.RhoBar,
			CBar:          cfg.CBar,
			BaselineCost:  cfg.BaselineCost,
			EntropyCost:   cfg.EntropyCost,
			MaxGradNorm:   cfg.MaxGradNorm,
			IntrinsicCoef: cfg.IntrinsicCoef,
			RewardClip:    cfg.RewardClip,
			Sink:          e.sink,
			Log:           e.log,
		})
		go func() { learnErrs <- l.Run(ctx) }()
	}

	runErr, alive := e.supervise(ctx, cancel, variant.Name(), ckpt,
		actorErrs, learnErrs)

	if err := e.saveCheckpoint(ckpt, variant.Name()); err != nil {
		e.log.Error().Err(err).Msg("final checkpoint failed")
		if runErr == nil {
			runErr = err
		}
	}
	e.drain(cancel, slotPool, actorErrs, alive)
	return runErr
}

// supervise waits for the learners to finish while handling actor
// deaths, periodic checkpoints, and the progress display. It returns
// the run error and the number of actors still running.
func (e *Experiment) supervise(ctx context.Context,
	cancel context.CancelFunc, variant string, ckpt *checkpointer.Checkpointer,
	actorErrs, learnErrs chan error) (error, int) {

	bar := progressbar.New(os.Stderr, e.cfg.TotalFrames)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	alive := e.cfg.NumActors
	learnersLeft := e.cfg.NumLearners
	var runErr error

	for learnersLeft > 0 {
		select {
		case err := <-actorErrs:
			alive--
			var fatal *actor.FatalError
			switch {
			case errors.As(err, &fatal):
				e.log.Warn().Err(fatal).Int("alive", alive).
					Msg("worker died, continuing with reduced parallelism")
				if alive == 0 && runErr == nil {
					runErr = fmt.Errorf("run: every worker died, "+
						"last: %w", fatal)
					cancel()
				}
			case err != nil && !errors.Is(err, context.Canceled):
				if runErr == nil {
					runErr = fmt.Errorf("run: actor: %w", err)
					cancel()
				}
			}

		case err := <-learnErrs:
			learnersLeft--
			switch {
			case err == nil:
				cancel() // frame budget spent, stop the others
			case errors.Is(err, context.Canceled):
				if runErr == nil && ctx.Err() != nil &&
					e.frames.Load() < e.cfg.TotalFrames {
					runErr = ErrInterrupted
				}
			default:
				if runErr == nil {
					runErr = fmt.Errorf("run: learner: %w", err)
					cancel()
				}
			}

		case <-ticker.C:
			bar.Set(e.frames.Load())
			if ckpt.Due() {
				if err := e.saveCheckpoint(ckpt, variant); err != nil {
					e.log.Error().Err(err).Msg("checkpoint failed")
				}
			}
		}
	}

	bar.Set(e.frames.Load())
	bar.Finish()
	return runErr, alive
}

// drain stops the surviving actors: one sentinel each, a bounded wait,
// then cancellation for stragglers.
func (e *Experiment) drain(cancel context.CancelFunc, p *pool.Pool,
	actorErrs chan error, alive int) {

	if alive <= 0 {
		return
	}
	p.PushSentinels(alive)

	deadline := time.After(drainTimeout)
	for alive > 0 {
		select {
		case <-actorErrs:
			alive--
		case <-deadline:
			e.log.Warn().Int("actors", alive).
				Msg("actors did not drain in time, cancelling")
			cancel()
			return
		}
	}
}

// saveCheckpoint persists the model and counters, serializing against
// concurrent updates.
func (e *Experiment) saveCheckpoint(ckpt *checkpointer.Checkpointer,
	variant string) error {

	e.mu.Lock()
	data, err := e.model.GobEncode()
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("saveCheckpoint: %w", err)
	}

	rec := checkpointer.Record{
		Frames: e.frames.Load(),
		Steps:  e.steps.Load(),
		Bonus:  variant,
		Model:  data,
		Visits: e.visits.Snapshot(),
	}
	if err := ckpt.Save(rec); err != nil {
		return fmt.Errorf("saveCheckpoint: %w", err)
	}
	e.log.Info().Int64("frames", rec.Frames).Str("path", ckpt.Path()).
		Msg("checkpoint saved")
	return nil
}

// resume restores model parameters and counters from a checkpoint
func (e *Experiment) resume(path string) error {
	rec, err := checkpointer.Load(path)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if err := e.model.GobDecode(rec.Model); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	e.frames.Store(rec.Frames)
	e.steps.Store(rec.Steps)
	if rec.Visits != nil {
		e.visits.Restore(rec.Visits)
	}
	e.log.Info().Str("path", path).Int64("frames", rec.Frames).
		Msg("resumed from checkpoint")
	return nil
}

// loadExplModel loads the frozen exploration policy named by the
// configuration, or nil when none is configured.
func (e *Experiment) loadExplModel() (policy.Model, error) {
	if e.cfg.ExplCheckpoint == "" {
		return nil, nil
	}
	rec, err := checkpointer.Load(e.cfg.ExplCheckpoint)
	if err != nil {
		return nil, fmt.Errorf("loadExplModel: %w", err)
	}
	m := &policy.EchoState{}
	if err := m.GobDecode(rec.Model); err != nil {
		return nil, fmt.Errorf("loadExplModel: %w", err)
	}
	return m, nil
}
