// Package statemachine provides a small generic transition table for
// entities whose state lives elsewhere (typically a database row).
//
// A Machine is built once during initialization and then shared: it maps
// (current state, event) pairs to next states and knows which states are
// terminal. Callers load the entity, ask the machine for the next state,
// and persist the result under whatever locking discipline the entity
// requires.
//
//	lifecycle := statemachine.New[Status, Event]().
//		Permit(StatusPending, EventPaid, StatusActive).
//		Permit(StatusActive, EventFailed, StatusPastDue).
//		Terminal(StatusCanceled)
//
//	next, err := lifecycle.Next(sub.Status, EventPaid)
package statemachine
