package lifecycle

import (
	"fmt"
	"slices"
)

// State is a lifecycle state of a run.
type State string

const (
	StateCreated    State = "created"
	StateConfigured State = "configured"
	StateImported   State = "imported"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateCreated:    {StateConfigured, StateFailed},
	StateConfigured: {StateImported, StateFailed},
	StateImported:   {StateProcessing, StateFailed},
	StateProcessing: {StateCompleted, StateFailed},
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// TransitionError reports an illegal state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
