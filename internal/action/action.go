package action

import (
	"time"

	"github.com/google/uuid"
)

// Action is one immutable automation step
type Action struct {
	id      uuid.UUID
	typ     ActionType
	timeout time.Duration
}

// New creates an Action with a fresh identifier
// A zero timeout means the step waits for its element indefinitely
func New(t ActionType, timeout time.Duration) Action {
	if t == nil {
		panic("action: nil action type")
	}
	if timeout < 0 {
		timeout = 0
	}
	return Action{id: uuid.New(), typ: t, timeout: timeout}
}

// ID returns the opaque identifier of the step
func (a Action) ID() uuid.UUID { return a.id }

// Type returns the step kind and payload
func (a Action) Type() ActionType { return a.typ }

// Timeout returns how long the step waits for its element, 0 meaning forever
func (a Action) Timeout() time.Duration { return a.timeout }

// Script renders the page script for the step
func (a Action) Script() string { return Render(a.typ) }

// Describe returns a human readable description of the step
func (a Action) Describe() string { return Describe(a.typ) }

// AccessibilityLabel returns the short spoken label of the step
func (a Action) AccessibilityLabel() string { return AccessibilityLabel(a.typ) }

// Key is the dedup key used by Similar
func (a Action) Key() string { return a.Describe() }

// Interactive reports whether the caller must supply a value when the step runs
func (a Action) Interactive() bool { return Interactive(a.typ) }

// String implements fmt.Stringer
func (a Action) String() string { return a.Describe() }

// Equal compares payload and timeout structurally, ignoring the identifier
func Equal(a, b Action) bool {
	return a.typ == b.typ && a.timeout == b.timeout
}

// Similar reports whether two steps describe the same thing with the same timeout
// Structurally different payloads can be similar when their descriptions match
func Similar(a, b Action) bool {
	return a.Key() == b.Key() && a.timeout == b.timeout
}

// Interactive reports whether t asks the caller for its value each time
func Interactive(t ActionType) bool {
	switch x := Innermost(t).(type) {
	case Input:
		return x.Text == ""
	case UploadFile:
		return x.File.IsPlaceholder()
	}
	return false
}
