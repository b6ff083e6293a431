package connect

import "errors"

var (
	// ErrAccountNotFound is returned when a creator has no payout account yet.
	ErrAccountNotFound = errors.New("connected account not found")

	// ErrAccountNotActive is returned when an operation requires an account
	// that can receive payments.
	ErrAccountNotActive = errors.New("connected account is not active")

	// ErrGatewayUnavailable indicates the provider call failed transiently;
	// the caller may retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
