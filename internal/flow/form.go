package flow

import "github.com/roach88/upcheck/internal/catalog"

// State is a step of the create/edit form workflow.
type State int

const (
	FormOpened State = iota + 1
	FieldsPopulated
	Submitted
	Persisted
	ValidationRejected
)

func (s State) String() string {
	switch s {
	case FormOpened:
		return "FormOpened"
	case FieldsPopulated:
		return "FieldsPopulated"
	case Submitted:
		return "Submitted"
	case Persisted:
		return "Persisted"
	case ValidationRejected:
		return "ValidationRejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Persisted || s == ValidationRejected
}

var transitions = map[State][]State{
	FormOpened:      {FieldsPopulated},
	FieldsPopulated: {Submitted},
	Submitted:       {Persisted, ValidationRejected},
}

// Mode says whether a form creates a check or edits one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Form tracks one pass through the check form.
type Form struct {
	Type catalog.Type
	Mode Mode

	// TypeLocked is set for edits: the type selector is shown but inert.
	TypeLocked bool

	history []State
}

func newForm(t catalog.Type, mode Mode) *Form {
	return &Form{
		Type:       t,
		Mode:       mode,
		TypeLocked: mode == ModeEdit,
		history:    []State{FormOpened},
	}
}

// State returns the current state.
func (f *Form) State() State {
	return f.history[len(f.history)-1]
}

// History returns every state the form passed through, in order.
func (f *Form) History() []State {
	return append([]State(nil), f.history...)
}

func (f *Form) advance(to State) error {
	from := f.State()
	for _, next := range transitions[from] {
		if next == to {
			f.history = append(f.history, to)
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}
