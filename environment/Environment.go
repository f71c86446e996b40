// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"github.com/explorl/explorl/timestep"
)

// Cardinality indicates whether the associated type is continuous or discrete
type Cardinality int

const (
	Discrete Cardinality = iota
	Continuous
)

// Spec implements a specification, which tells the shape and bounds of
// an action or observation
type Spec struct {
	Shape       []int
	LowerBound  []float64
	UpperBound  []float64
	Cardinality Cardinality
}

// Size returns the total number of elements described by the Spec
func (s Spec) Size() int {
	size := 1
	for _, dim := range s.Shape {
		size *= dim
	}
	return size
}

// Environment implements a simulated environment. Reset starts a new
// episode and returns its first TimeStep. Step applies a discrete
// action and returns the resulting TimeStep, which distinguishes true
// termination from truncation. Environments are not safe for concurrent
// use; every simulation stream owns its own instance.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action int) (timestep.TimeStep, error)
	ObservationSpec() Spec
	ActionSpec() Spec
	Close() error
}

// NumActions returns the number of discrete actions available in an
// environment with a discrete action spec.
func NumActions(e Environment) int {
	spec := e.ActionSpec()
	return int(spec.UpperBound[0]) + 1
}

// Builder constructs one independent environment instance per
// simulation stream. The id parameter seeds per-stream randomness.
type Builder func(id int) (Environment, error)
