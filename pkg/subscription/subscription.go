package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/communitykit/pkg/statemachine"
)

// Status is the local lifecycle state of a subscription.
type Status string

const (
	StatusNone     Status = "none"
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Event drives subscription lifecycle transitions.
type Event string

const (
	EventCheckoutCreated  Event = "checkout_created"
	EventPaymentConfirmed Event = "payment_confirmed"
	EventPaymentFailed    Event = "payment_failed"
	EventCanceled         Event = "canceled"
)

// Subscription is the canonical recurring-payment relationship between a
// buyer and a creator's paid community. At most one live subscription exists
// per (buyer, community) pair.
type Subscription struct {
	ID                uuid.UUID
	BuyerID           uuid.UUID
	CommunityID       uuid.UUID
	CreatorID         uuid.UUID
	ProviderSubRef    string
	Status            Status
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	// StatusChangedAt is the provider-side occurrence time of the event that
	// produced the current status. Events older than this are stale and are
	// not applied, which makes out-of-order delivery commutative.
	StatusChangedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CanceledAt      *time.Time
}

// Live reports whether the subscription still entitles the buyer to hold it:
// active, or past due inside the payment-recovery window. A live subscription
// blocks a second checkout for the same community.
func (s *Subscription) Live() bool {
	return s.Status == StatusActive || s.Status == StatusPastDue
}

// lifecycle is the shared transition table for all subscriptions. CANCELED is
// terminal: cancellation is final, late events for a canceled subscription
// are rejected.
var lifecycle = statemachine.New[Status, Event]().
	Permit(StatusNone, EventCheckoutCreated, StatusPending).
	Permit(StatusPending, EventPaymentConfirmed, StatusActive).
	Permit(StatusPending, EventPaymentFailed, StatusPastDue).
	Permit(StatusPending, EventCanceled, StatusCanceled).
	Permit(StatusActive, EventPaymentConfirmed, StatusActive).
	Permit(StatusActive, EventPaymentFailed, StatusPastDue).
	Permit(StatusActive, EventCanceled, StatusCanceled).
	Permit(StatusPastDue, EventPaymentConfirmed, StatusActive).
	Permit(StatusPastDue, EventPaymentFailed, StatusPastDue).
	Permit(StatusPastDue, EventCanceled, StatusCanceled).
	Terminal(StatusCanceled)
