package checkout

import "errors"

var (
	// ErrAccountNotActive is returned when the community's creator does not
	// have an active payout account.
	ErrAccountNotActive = errors.New("creator account is not active")

	// ErrAlreadySubscribed is returned when the buyer already holds an
	// active subscription for the community.
	ErrAlreadySubscribed = errors.New("buyer already subscribed to community")

	// ErrGatewayUnavailable indicates the provider call failed transiently;
	// the caller may retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrSessionNotFound is returned when no checkout session matches the
	// provider reference.
	ErrSessionNotFound = errors.New("checkout session not found")
)
