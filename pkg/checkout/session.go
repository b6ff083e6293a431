package checkout

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle of a purchase attempt.
type SessionStatus string

const (
	// SessionCreated means the buyer was handed a checkout URL but has not
	// paid yet. No membership or subscription state exists at this point.
	SessionCreated SessionStatus = "created"
	// SessionExpired means the session passed its TTL without completing.
	SessionExpired SessionStatus = "expired"
	// SessionCompleted means a verified webhook confirmed the payment.
	// This is the only path to completion.
	SessionCompleted SessionStatus = "completed"
)

// Session is the ephemeral record of an initiated purchase attempt.
type Session struct {
	ID                uuid.UUID
	BuyerID           uuid.UUID
	CommunityID       uuid.UUID
	CreatorID         uuid.UUID
	PriceRef          string
	ProviderSessionID string
	Status            SessionStatus
	ExpiresAt         time.Time
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// Checkout is what the caller gets back: the hosted payment page and the
// local session identifier.
type Checkout struct {
	URL       string
	SessionID uuid.UUID
}
