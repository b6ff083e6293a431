package subscription

import "errors"

var (
	// ErrSubscriptionNotFound is returned when no subscription matches the
	// lookup. For webhook handlers this is retryable: the gateway may deliver
	// an invoice event before the checkout completion that creates the row.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrInvalidTransition is returned when an event would move a
	// subscription out of a terminal state. Cancellation is final; callers
	// log and drop the event instead of retrying.
	ErrInvalidTransition = errors.New("invalid subscription transition")

	// ErrAccountNotActive is returned when a checkout completion arrives for
	// a creator whose payout account has been deactivated since the checkout
	// was created.
	ErrAccountNotActive = errors.New("creator account is not active")

	// ErrMembershipNotFound is returned by membership stores for unknown
	// (buyer, community) pairs.
	ErrMembershipNotFound = errors.New("membership not found")
)
