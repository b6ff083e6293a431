package gateway

import "errors"

var (
	// ErrInvalidSignature indicates the webhook payload failed signature
	// verification. Such payloads are rejected without being stored.
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")

	// ErrMalformedPayload indicates a verified payload could not be decoded.
	ErrMalformedPayload = errors.New("gateway: malformed webhook payload")

	// ErrUnavailable indicates a provider call failed in a way the caller
	// may retry (network failure, provider 5xx, timeout).
	ErrUnavailable = errors.New("gateway: provider unavailable")

	ErrMissingAPIKey        = errors.New("gateway: API key is required")
	ErrMissingWebhookSecret = errors.New("gateway: webhook secret is required")
)
