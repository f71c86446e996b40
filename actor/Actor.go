// Package actor implements the collection workers: goroutines that run
// one environment instance each, fill trajectory slots under a
// snapshot behavior policy, and publish them for learning.
package actor

import (
	"context"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/explorl/explorl/bonus"
	"github.com/explorl/explorl/environment"
	"github.com/explorl/explorl/policy"
	"github.com/explorl/explorl/pool"
	"github.com/explorl/explorl/timestep"
	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/utils/floatutils"
)

// Config wires one worker into the shared training state
type Config struct {
	ID   int
	Env  environment.Environment
	Pool *pool.Pool

	// Slots is the shared arena; the worker touches only the slot
	// whose index it currently owns.
	Slots []*trajectory.Slot

	// Carry holds the per-slot-index recurrent states; ExplCarry the
	// exploration model's, nil when no exploration model is active.
	Carry     *trajectory.CarryTable
	ExplCarry *trajectory.CarryTable

	Store     *policy.Store
	ExplModel policy.Model // frozen, nil when inactive

	Bonus  bonus.Bonus
	Visits *bonus.VisitTable

	Seed uint64
	Log  zerolog.Logger
}

// Worker collects trajectory segments. Its lifecycle is a loop of
// acquire-free, fill, publish-full; it exits cleanly on the pool's
// stop sentinel or context cancellation, and with a FatalError when
// its environment fails.
type Worker struct {
	cfg Config
	rng *rand.Rand

	// Boundary step: the last environment output and the agent output
	// computed at it, replayed as row 0 of the next segment.
	lastObs      []float64
	lastLogProbs []float64
	lastRow      trajectory.Row

	// Episode accumulators. epWin sticks once any positive extrinsic
	// reward lands, until the episode resets.
	epReturn float64
	epSteps  int
	epWin    bool

	bonusState bonus.State
}

// New creates a worker. Environments are created by the caller so a
// construction failure surfaces before any goroutine starts.
func New(cfg Config) *Worker {
	obsDim := cfg.Env.ObservationSpec().Size()
	numActions := environment.NumActions(cfg.Env)
	w := &Worker{
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		lastObs:      make([]float64, obsDim),
		lastLogProbs: make([]float64, numActions),
	}
	w.lastRow = trajectory.Row{
		Obs:      w.lastObs,
		LogProbs: w.lastLogProbs,
		Done:     true,
		RealDone: true,
	}
	return w
}

// Run drives the worker until the pool delivers the stop sentinel, the
// context is canceled, or the environment fails.
func (w *Worker) Run(ctx context.Context) error {
	defer w.cfg.Env.Close()

	ts, err := w.cfg.Env.Reset()
	if err != nil {
		return &FatalError{Worker: w.cfg.ID, Op: "reset", Err: err}
	}
	copy(w.lastObs, ts.Observation)
	w.cfg.Visits.Visit(floatutils.ArgMax(ts.Observation))
	w.bonusState = w.cfg.Bonus.NewEpisode()

	for {
		idx, err := w.cfg.Pool.AcquireFree(ctx)
		if err != nil {
			return err
		}
		if idx == pool.Stop {
			w.cfg.Log.Debug().Int("actor", w.cfg.ID).
				Msg("stop sentinel received")
			return nil
		}

		ts, err = w.fillSlot(idx, ts)
		if err != nil {
			w.cfg.Pool.Abort(idx)
			return err
		}
		if err := w.cfg.Pool.PublishFull(idx); err != nil {
			return err
		}
	}
}

// fillSlot writes one full segment into the owned slot and returns the
// environment output the segment ended on.
func (w *Worker) fillSlot(idx int,
	ts timestep.TimeStep) (timestep.TimeStep, error) {

	slot := w.cfg.Slots[idx]
	model := w.cfg.Store.Snapshot()

	state := w.cfg.Carry.Get(idx)
	slot.InitialState = w.cfg.Carry.Get(idx)

	var explState []float64
	if w.cfg.ExplModel != nil {
		explState = w.cfg.ExplCarry.Get(idx)
		slot.InitialExplState = w.cfg.ExplCarry.Get(idx)
	}

	slot.SetRow(0, w.lastRow)

	for t := 1; t <= slot.Unroll(); t++ {
		var explLogits []float64
		if w.cfg.ExplModel != nil {
			explLogits, _, explState = w.cfg.ExplModel.Step(
				ts.Observation, explState, nil)
		}
		logits, value, next := model.Step(ts.Observation, state,
			explLogits)
		state = next

		floatutils.LogSoftmax(logits, w.lastLogProbs)
		action := w.sample(w.lastLogProbs)

		prevObs := ts.Observation
		stepped, err := w.cfg.Env.Step(action)
		if err != nil {
			return ts, &FatalError{Worker: w.cfg.ID, Op: "step", Err: err}
		}
		ts = stepped

		w.cfg.Visits.Visit(floatutils.ArgMax(ts.Observation))
		b := w.cfg.Bonus.Bonus(prevObs, action, ts.Observation,
			w.bonusState)

		w.epReturn += ts.Reward
		w.epSteps++
		w.epWin = w.epWin || ts.Reward > 0

		row := trajectory.Row{
			Obs:           ts.Observation,
			Action:        action,
			LogProbs:      w.lastLogProbs,
			Value:         value,
			Reward:        ts.Reward,
			Bonus:         b,
			Done:          ts.Done(),
			RealDone:      ts.Terminated,
			EpisodeReturn: w.epReturn,
			EpisodeStep:   w.epSteps,
			EpisodeWin:    w.epWin,
			VisitedStates: w.cfg.Visits.Distinct(),
		}

		if ts.Done() {
			w.cfg.Log.Debug().Int("actor", w.cfg.ID).
				Float64("return", w.epReturn).Int("steps", w.epSteps).
				Bool("win", row.EpisodeWin).Msg("episode finished")

			// The stream continues into a new episode: the done row
			// keeps the final reward and the completed episode's
			// accumulators, but carries the first observation of the
			// next episode.
			reset, err := w.cfg.Env.Reset()
			if err != nil {
				return ts, &FatalError{Worker: w.cfg.ID, Op: "reset",
					Err: err}
			}
			ts = reset
			row.Obs = ts.Observation

			w.epReturn = 0
			w.epSteps = 0
			w.epWin = false
			w.bonusState = w.cfg.Bonus.NewEpisode()
			state = model.InitialState()
			if w.cfg.ExplModel != nil {
				explState = w.cfg.ExplModel.InitialState()
			}
			w.cfg.Visits.Visit(floatutils.ArgMax(ts.Observation))
		}

		slot.SetRow(t, row)

		// Save the boundary for the next segment's row 0. lastLogProbs
		// already holds this step's behavior log-probabilities.
		copy(w.lastObs, row.Obs)
		w.lastRow = row
		w.lastRow.Obs = w.lastObs
		w.lastRow.LogProbs = w.lastLogProbs
	}

	w.cfg.Carry.Set(idx, state)
	if w.cfg.ExplModel != nil {
		w.cfg.ExplCarry.Set(idx, explState)
	}
	return ts, nil
}

// sample draws an action from a log-probability vector
func (w *Worker) sample(logProbs []float64) int {
	u := w.rng.Float64()
	cum := 0.0
	for a, lp := range logProbs {
		cum += math.Exp(lp)
		if u < cum {
			return a
		}
	}
	return len(logProbs) - 1
}
