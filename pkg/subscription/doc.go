// Package subscription owns the canonical subscription lifecycle and the
// membership projection content code reads access from.
//
// The lifecycle is NONE -> PENDING -> ACTIVE <-> PAST_DUE -> CANCELED, with
// CANCELED terminal. Webhook events drive transitions; each mutation runs
// under a per-subscription lock and rewrites the membership projection in the
// same step, so readers never see the subscription and its projection
// disagree. Events carry their provider-side occurrence time, and stale
// events are dropped, which makes out-of-order delivery converge to the same
// final state.
//
// The access gate is the pure read side: it answers from the projection (with
// an optional cache) and never touches the payment gateway.
package subscription
