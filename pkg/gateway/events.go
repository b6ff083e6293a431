package gateway

import (
	"time"

	"github.com/google/uuid"
)

// Event is a verified, decoded webhook notification. The concrete type
// identifies the event kind and carries only the fields its handler needs;
// there is no generic payload bag handlers have to dig through.
//
// Implementations of WebhookVerifier return exactly one of the variants
// declared in this file. Event types the provider sends but this module has
// no use for decode to Unrecognized.
type Event interface {
	// EventID returns the provider's globally unique event identifier,
	// used as the deduplication key.
	EventID() string
	// EventType returns the provider's original event type string.
	EventType() string
	// OccurredAt returns the provider-side event timestamp.
	OccurredAt() time.Time

	isEvent()
}

// EventMeta carries the fields shared by every event variant.
type EventMeta struct {
	ID        string
	Type      string
	Timestamp time.Time
}

func (m EventMeta) EventID() string       { return m.ID }
func (m EventMeta) EventType() string     { return m.Type }
func (m EventMeta) OccurredAt() time.Time { return m.Timestamp }
func (m EventMeta) isEvent()              {}

// CheckoutCompleted reports that a buyer finished a hosted checkout and the
// first payment was collected. This is the only event that creates paid
// access; checkout session creation never does.
type CheckoutCompleted struct {
	EventMeta

	SessionID       string // provider checkout session id
	SubscriptionRef string // provider subscription id created by the checkout
	BuyerID         uuid.UUID
	CommunityID     uuid.UUID
	CreatorID       uuid.UUID
	AmountTotal     int64 // smallest currency unit
	Currency        string
}

// SubscriptionUpdated carries the provider's absolute view of a
// subscription. Handlers apply it as the authoritative state rather than a
// delta, which is what makes out-of-order delivery tolerable.
type SubscriptionUpdated struct {
	EventMeta

	SubscriptionRef   string
	Status            string // provider status, mapped by the handler
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
}

// SubscriptionDeleted reports a provider-side subscription deletion.
// It drives the terminal CANCELED transition.
type SubscriptionDeleted struct {
	EventMeta

	SubscriptionRef string
}

// InvoicePaid reports a settled recurring payment.
type InvoicePaid struct {
	EventMeta

	SubscriptionRef string
	InvoiceRef      string
	AmountPaid      int64
	Currency        string
	PeriodEnd       time.Time
}

// InvoicePaymentFailed reports a failed renewal charge. Access is retained
// during the grace window; the subscription moves to past due.
type InvoicePaymentFailed struct {
	EventMeta

	SubscriptionRef string
	InvoiceRef      string
	AmountDue       int64
	Currency        string
}

// ChargeRefunded reports a refund on a previously settled charge. It only
// feeds the earnings ledger; it does not move the subscription lifecycle.
type ChargeRefunded struct {
	EventMeta

	ChargeRef      string
	CreatorID      uuid.UUID
	AmountRefunded int64
	Currency       string
}

// Unrecognized is returned for event types this module does not handle.
// The processor records them as ignored so redeliveries are acknowledged.
type Unrecognized struct {
	EventMeta
}
