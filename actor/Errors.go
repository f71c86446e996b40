package actor

import "fmt"

// FatalError reports that a worker died from an environment failure
// and will collect no more segments. The orchestrator decides whether
// the remaining workers keep the run alive.
type FatalError struct {
	Worker int
	Op     string
	Err    error
}

// Error implements the error interface
func (e *FatalError) Error() string {
	return fmt.Sprintf("actor %d: %s: %v", e.Worker, e.Op, e.Err)
}

// Unwrap returns the underlying failure
func (e *FatalError) Unwrap() error { return e.Err }
