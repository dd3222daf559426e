package harness

import (
	"time"

	"github.com/roach88/upcheck/internal/catalog"
)

// Status is the final state of a scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Trace phases.
const (
	PhaseSetup    = "setup"
	PhaseFlow     = "flow"
	PhaseAssert   = "assert"
	PhaseTeardown = "teardown"
)

// Result is the record of one scenario attempt.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// TraceEvent is one step of an attempt. Generated values (names, targets)
// are left out so traces of different runs compare equal.
type TraceEvent struct {
	Seq    int               `json:"seq"`
	Phase  string            `json:"phase"`
	Action string            `json:"action"`
	Args   map[string]string `json:"args,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// NewResult creates an empty result. Pass flips to false on the first
// error.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError marks the result failed and records msg.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}

// AddEvent appends a trace event; sequence numbers start at 1.
func (r *Result) AddEvent(phase, action string, args map[string]string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    len(r.Trace) + 1,
		Phase:  phase,
		Action: action,
		Args:   args,
	})
}

// failLast attaches err to the latest event.
func (r *Result) failLast(err error) {
	if len(r.Trace) > 0 {
		r.Trace[len(r.Trace)-1].Error = err.Error()
	}
}

// Fixture is a check a scenario created, through the API or the form.
type Fixture struct {
	// Source is "api" or "ui".
	Source    string       `json:"source"`
	Name      string       `json:"name"`
	CheckType catalog.Type `json:"check_type"`
	URL       string       `json:"url,omitempty"`
}

// Outcome is the final record of one scenario across all its attempts.
type Outcome struct {
	Scenario  string       `json:"scenario"`
	Case      string       `json:"case,omitempty"`
	Suite     string       `json:"suite"`
	Kind      Kind         `json:"kind"`
	CheckType catalog.Type `json:"check_type"`
	Status    Status       `json:"status"`
	Attempts  int          `json:"attempts"`

	// Err is the error of the last attempt; nil when passed.
	Err error `json:"-"`

	// Error is Err's message.
	Error string `json:"error,omitempty"`

	Namespace string        `json:"namespace,omitempty"`
	Duration  time.Duration `json:"duration"`

	// Artifacts is the directory failure screenshots were written to.
	Artifacts string `json:"artifacts,omitempty"`

	Fixtures []Fixture `json:"fixtures,omitempty"`

	// Result is the last attempt.
	Result *Result `json:"result,omitempty"`
}

// Passed reports whether the scenario passed.
func (o Outcome) Passed() bool {
	return o.Status == StatusPassed
}

// Summary is the outcome of a whole run.
type Summary struct {
	RunID    string    `json:"run_id"`
	Outcomes []Outcome `json:"outcomes"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Total    int       `json:"total"`
}

// OK reports whether every scenario passed.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.Skipped == 0
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Total++
	switch o.Status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}
