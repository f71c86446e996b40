// Package policy defines the model contract the training loop drives,
// a reference model satisfying it, and the parameter snapshot store
// that hands actor workers their (possibly stale) behavior policy.
package policy

import (
	"encoding/gob"

	"gonum.org/v1/gonum/mat"

	"github.com/explorl/explorl/trajectory"
	"github.com/explorl/explorl/vtrace"
)

// Output is the result of a batched model unroll. Logits is the flat
// time-major (T+1, B, A) block of action logits, Values the (T+1) x B
// value estimates. Features is a model-specific forward cache that a
// Trainable may consume in Update; callers treat it as opaque.
type Output struct {
	Logits   []float64
	Values   *mat.Dense
	Features []float64
}

// Model is the contract every policy network must satisfy toward the
// training loop: a single-step forward used by actors and a batched
// unroll used by learners. explLogits, when non-nil, are the logits of
// an auxiliary exploration policy for the model to blend in.
//
// Model implementations must be safe for concurrent Step and Unroll
// calls; mutation happens only through Trainable.Update, which the
// learner serializes externally.
type Model interface {
	// HiddenSize returns the recurrent state dimension
	HiddenSize() int

	// InitialState returns a fresh initial recurrent state
	InitialState() []float64

	// Step runs one forward step, returning action logits, a value
	// estimate, and the updated recurrent state.
	Step(obs, state, explLogits []float64) (logits []float64,
		value float64, next []float64)

	// Unroll runs the model over every timestep of a batch, starting
	// each batch element from its carried initial state. explLogits,
	// when non-nil, is a flat (T+1, B, A) block.
	Unroll(b *trajectory.Batch, initial [][]float64,
		explLogits []float64) (*Output, error)
}

// Losses are the scalar loss components of one learning step, reported
// for metrics; gradient application happens inside Update.
type Losses struct {
	PG       float64
	Baseline float64
	Entropy  float64
}

// UpdateInput carries everything a Trainable needs to apply one
// gradient step. The caller holds the learning-step lock for the whole
// call.
type UpdateInput struct {
	Batch   *trajectory.Batch
	Output  *Output
	Returns *vtrace.Returns

	LR           float64
	BaselineCost float64
	EntropyCost  float64
	MaxGradNorm  float64
}

// Trainable is a Model whose parameters the learner can update and
// checkpoint.
type Trainable interface {
	Model
	gob.GobEncoder
	gob.GobDecoder

	// Update applies one gradient step and returns the loss components
	Update(in UpdateInput) (Losses, error)

	// Clone returns a deep copy for snapshot publication
	Clone() Model
}
