package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job/store operations. Check with errors.Is().
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateInput    = errors.New("input path already has a job")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrStoreBusy         = errors.New("store busy")
)

// NotFoundError wraps ErrJobNotFound with the offending id.
func NotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// InvalidTransitionError wraps ErrInvalidTransition with the attempted edge.
func InvalidTransitionError(id string, from, to Status) error {
	return fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, from, to, id)
}
