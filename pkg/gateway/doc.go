// Package gateway defines the boundary with the external payment provider:
// an outbound Gateway interface for accounts, onboarding links, and hosted
// checkouts, and an inbound WebhookVerifier that authenticates webhook
// payloads and decodes them into a tagged union of typed event variants.
//
// The Stripe implementation uses Connect Express accounts for creator
// payouts and subscription-mode Checkout Sessions for purchases. Internal
// identifiers travel in provider metadata so asynchronous events can be
// mapped back to local records without provider lookups.
//
// Both interfaces are injected dependencies. Tests and alternative
// providers implement them directly; nothing else in the module imports
// the Stripe SDK.
package gateway
