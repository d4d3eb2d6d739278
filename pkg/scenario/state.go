// Package scenario is the per-session state machine behind a conversational
// exercise. It owns no I/O: gateway calls run inside a Turn the caller
// executes, and every transition returns the Effects the caller must persist.
package scenario

import "errors"

// State is the machine's position in the evaluation cycle.
type State int

const (
	NotStarted State = iota
	AwaitingUserInput
	Evaluating
	GoalAdvanced
	Retry
	AllGoalsComplete
)

var stateNames = [...]string{
	NotStarted:        "not_started",
	AwaitingUserInput: "awaiting_user_input",
	Evaluating:        "evaluating",
	GoalAdvanced:      "goal_advanced",
	Retry:             "retry",
	AllGoalsComplete:  "all_goals_complete",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// AcceptsInput reports whether a learner message may be submitted.
func (s State) AcceptsInput() bool {
	return s == AwaitingUserInput || s == GoalAdvanced || s == Retry
}

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state. Callers treat it as a no-op.
	ErrInvalidState = errors.New("invalid scenario state")
	// ErrEmptyMessage is returned for blank learner messages.
	ErrEmptyMessage = errors.New("empty message")
	// ErrStaleTurn is returned when a turn outcome arrives after a restart.
	ErrStaleTurn = errors.New("stale turn")
)

// Messages are the fixed texts the machine adds to the transcript.
type Messages struct {
	Retry       string `yaml:"retry"`
	Completion  string `yaml:"completion"`
	Advanced    string `yaml:"advanced"`
	ErrorPrefix string `yaml:"error_prefix"`
}

// DefaultMessages returns the built-in texts.
func DefaultMessages() Messages {
	return Messages{
		Retry:       "Not quite right. Try again!",
		Completion:  "Perfect! Je hebt alle doelen bereikt.",
		Advanced:    "Goed gedaan! Laten we doorgaan.",
		ErrorPrefix: "Error: ",
	}
}

// withDefaults fills empty fields from DefaultMessages.
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Retry == "" {
		m.Retry = d.Retry
	}
	if m.Completion == "" {
		m.Completion = d.Completion
	}
	if m.Advanced == "" {
		m.Advanced = d.Advanced
	}
	if m.ErrorPrefix == "" {
		m.ErrorPrefix = d.ErrorPrefix
	}
	return m
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
