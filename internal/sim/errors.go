package sim

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors for simulation construction and runs.
var (
	// ErrConfiguration indicates an invalid generator, timing or simulation
	// setup. Raised at construction time wherever possible.
	ErrConfiguration = errors.New("sim: invalid configuration")

	// ErrNumeric indicates a computation produced a non-finite value.
	ErrNumeric = errors.New("sim: non-finite value")

	// ErrAlreadyRun indicates Run was invoked on a finished simulation.
	ErrAlreadyRun = errors.New("sim: simulation already run")
)

// RunError wraps a failure with the instant and step at which it occurred.
type RunError struct {
	Step    int
	Time    time.Time
	Builder string
	Wrapped error
}

func (e *RunError) Error() string {
	if e.Builder != "" {
		return fmt.Sprintf("step %d (%s) builder %q: %v", e.Step, e.Time.Format(time.DateOnly), e.Builder, e.Wrapped)
	}
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Time.Format(time.DateOnly), e.Wrapped)
}

func (e *RunError) Unwrap() error {
	return e.Wrapped
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}
