package statemachine

// Machine is a stateless transition table over states S and events E.
// Unlike a classic FSM instance it holds no current state: callers own the
// state (usually a database row) and ask the machine what the next state is.
// This makes a single Machine safe to share across any number of entities
// and across goroutines once built.
type Machine[S comparable, E comparable] struct {
	transitions map[S]map[E]S
	terminal    map[S]bool
}

// New creates an empty transition table.
func New[S comparable, E comparable]() *Machine[S, E] {
	return &Machine[S, E]{
		transitions: make(map[S]map[E]S),
		terminal:    make(map[S]bool),
	}
}

// Permit declares that event on moves state from to state to.
// Declaring a transition out of a terminal state panics: terminal means
// terminal, and a conflicting table is a programming error worth failing
// fast on during initialization.
func (m *Machine[S, E]) Permit(from S, on E, to S) *Machine[S, E] {
	if m.terminal[from] {
		panic("statemachine: transition declared out of terminal state")
	}
	if _, ok := m.transitions[from]; !ok {
		m.transitions[from] = make(map[E]S)
	}
	m.transitions[from][on] = to
	return m
}

// Terminal marks a state as final. Next returns ErrTerminalState for any
// event fired from it.
func (m *Machine[S, E]) Terminal(s S) *Machine[S, E] {
	if _, ok := m.transitions[s]; ok {
		panic("statemachine: terminal state has outgoing transitions")
	}
	m.terminal[s] = true
	return m
}

// Next returns the state reached by firing event on from state from.
// Returns ErrTerminalState if from is terminal, or a *NoTransitionError
// if the table has no entry for the pair.
func (m *Machine[S, E]) Next(from S, on E) (S, error) {
	var zero S
	if m.terminal[from] {
		return zero, ErrTerminalState
	}
	events, ok := m.transitions[from]
	if !ok {
		return zero, newNoTransitionError(from, on)
	}
	to, ok := events[on]
	if !ok {
		return zero, newNoTransitionError(from, on)
	}
	return to, nil
}

// Can reports whether firing event on from state from is permitted.
func (m *Machine[S, E]) Can(from S, on E) bool {
	_, err := m.Next(from, on)
	return err == nil
}

// IsTerminal reports whether the state is final.
func (m *Machine[S, E]) IsTerminal(s S) bool {
	return m.terminal[s]
}
