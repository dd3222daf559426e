package flow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidationRejected is wrapped by the error returned when the product
// keeps the form open and shows validation errors.
var ErrValidationRejected = errors.New("form rejected by validation")

// UIAssertionError reports an element or state that did not appear in time.
type UIAssertionError struct {
	// Step names the workflow step, e.g. "save" or "expect type".
	Step     string
	Selector string
	Expected string
	Actual   string

	// Screenshot is the path of the captured page, if one was written.
	Screenshot string

	Err error
}

func (e *UIAssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: expected %s", e.Step, e.Expected)
	if e.Actual != "" {
		fmt.Fprintf(&b, ", got %q", e.Actual)
	}
	fmt.Fprintf(&b, " (selector %s)", e.Selector)
	if e.Screenshot != "" {
		fmt.Fprintf(&b, " [screenshot %s]", e.Screenshot)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UIAssertionError) Unwrap() error {
	return e.Err
}

// IsUIAssertionError reports whether err wraps a UIAssertionError.
func IsUIAssertionError(err error) bool {
	var ue *UIAssertionError
	return errors.As(err, &ue)
}

// TransitionError is returned for a form state change the workflow does
// not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal form transition %s -> %s", e.From, e.To)
}
