package webhook

import "errors"

var (
	// ErrDuplicateEvent is returned by event stores when inserting an
	// external event id that already has a record.
	ErrDuplicateEvent = errors.New("duplicate webhook event")

	// ErrEventNotFound is returned by event stores for unknown event ids.
	ErrEventNotFound = errors.New("webhook event not found")

	// ErrEventInFlight is returned when a concurrent delivery of the same
	// event id holds the pending record. Retryable: the gateway redelivers
	// and finds the settled result.
	ErrEventInFlight = errors.New("webhook event is being processed")

	// ErrSkipEvent classifies a handler error as non-retryable: the event is
	// recorded as ignored and the delivery acknowledged. Handlers join it
	// onto errors that redelivery can never fix, like a transition out of a
	// terminal state.
	ErrSkipEvent = errors.New("webhook event skipped")
)
