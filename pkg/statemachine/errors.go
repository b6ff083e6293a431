package statemachine

import (
	"errors"
	"fmt"
)

// ErrTerminalState indicates an event was fired from a state marked terminal.
var ErrTerminalState = errors.New("statemachine: state is terminal")

// NoTransitionError indicates the transition table has no entry for the
// given state/event pair.
type NoTransitionError struct {
	From  string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("statemachine: no transition from state %q on event %q", e.From, e.Event)
}

func newNoTransitionError(from, event any) *NoTransitionError {
	return &NoTransitionError{
		From:  fmt.Sprintf("%v", from),
		Event: fmt.Sprintf("%v", event),
	}
}

// IsNoTransitionError reports whether err wraps a *NoTransitionError.
func IsNoTransitionError(err error) bool {
	var e *NoTransitionError
	return errors.As(err, &e)
}
