// Package timestep implements timesteps of the agent-environment interaction
package timestep

import "fmt"

// TimeStep packages together a single transition in an environment.
//
// Terminated and Truncated are deliberately separate signals: Terminated
// means the episode truly ended inside the environment (goal reached,
// death), while Truncated means an artificial cutoff such as a step
// limit. Only true termination zeroes the discount during learning, so
// conflating the two changes the bias of the off-policy correction.
type TimeStep struct {
	Observation []float64
	Reward      float64
	Terminated  bool
	Truncated   bool

	// Number is the step number within the current episode, starting
	// at 0 for the step produced by Reset.
	Number int
}

// New returns a new TimeStep with the given data
func New(obs []float64, reward float64, terminated, truncated bool,
	number int) TimeStep {
	return TimeStep{
		Observation: obs,
		Reward:      reward,
		Terminated:  terminated,
		Truncated:   truncated,
		Number:      number,
	}
}

// First returns a TimeStep as produced by an environment reset
func First(obs []float64) TimeStep {
	return TimeStep{Observation: obs}
}

// Done returns whether the episode ended at this step for any reason
func (t TimeStep) Done() bool {
	return t.Terminated || t.Truncated
}

func (t TimeStep) String() string {
	return fmt.Sprintf("TimeStep | Reward: %.2f | Terminated: %v | "+
		"Truncated: %v | Step Number: %v", t.Reward, t.Terminated,
		t.Truncated, t.Number)
}
