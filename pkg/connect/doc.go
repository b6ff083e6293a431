// Package connect manages creator payout accounts with the payment
// provider: idempotent account creation, hosted onboarding links, and
// status refresh. The local status {not_started, pending, restricted,
// active} gates checkout creation and is re-checked when checkout
// completions are applied.
package connect
