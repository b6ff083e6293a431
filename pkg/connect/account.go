package connect

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the onboarding state of a creator's payout account.
type Status string

const (
	// StatusNotStarted means the creator has never begun monetization setup.
	// It is the implicit status for creators with no account record.
	StatusNotStarted Status = "not_started"
	// StatusPending means the account exists at the provider but onboarding
	// is incomplete or the provider has not enabled payments yet.
	StatusPending Status = "pending"
	// StatusRestricted means the provider disabled payments on the account,
	// or the owner deactivated monetization.
	StatusRestricted Status = "restricted"
	// StatusActive means the account can receive payments and payouts.
	StatusActive Status = "active"
)

// Account is the local record of a creator's payout account. One per
// creator; created on first monetization setup, never deleted, only
// deactivated.
type Account struct {
	CreatorID         uuid.UUID // primary key - one payout account per creator
	ProviderAccountID string
	Status            Status
	ChargesEnabled    bool
	PayoutsEnabled    bool
	DetailsSubmitted  bool
	DisabledReason    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the account can be a checkout target.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}
