package pool

import "errors"

// PoolError implements errors unique to the trajectory buffer pool
type PoolError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *PoolError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap supports errors.Is on wrapped pool errors
func (e *PoolError) Unwrap() error {
	return e.Err
}

// ErrOwnership reports that a slot index changed hands while the caller
// believed it held exclusive ownership. This is always a bug in the
// caller, never a recoverable condition, and is surfaced rather than
// silently repaired.
var ErrOwnership = errors.New("slot ownership violated")

// ErrBadIndex reports a slot index outside the pool
var ErrBadIndex = errors.New("slot index out of range")

// IsOwnershipViolation returns whether an error reports that exclusive
// slot ownership was violated.
func IsOwnershipViolation(err error) bool {
	return errors.Is(err, ErrOwnership)
}
