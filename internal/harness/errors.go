package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/upcheck/internal/flow"
)

// TimeoutError reports that the scenario or run deadline expired.
type TimeoutError struct {
	// Scope is "scenario" or "global".
	Scope string
	Limit time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s timeout of %s exceeded: %v", e.Scope, e.Limit, e.Err)
	}
	return fmt.Sprintf("%s timeout of %s exceeded", e.Scope, e.Limit)
}

func (e *TimeoutError) Unwrap() []error {
	if e.Err != nil {
		return []error{context.DeadlineExceeded, e.Err}
	}
	return []error{context.DeadlineExceeded}
}

// IsTimeoutError reports whether err wraps a TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRetryable reports whether a failed attempt may be re-run from setup:
// scenario timeouts and UI assertion failures other than a rejected form.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, flow.ErrValidationRejected) {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return te.Scope != "global"
	}
	return flow.IsUIAssertionError(err) || errors.Is(err, context.DeadlineExceeded)
}
