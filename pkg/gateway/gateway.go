package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Gateway defines the outbound boundary with the payment provider.
// It is injected as an explicit dependency into the account manager and the
// checkout factory so tests can substitute a fake; nothing in this module
// talks to the provider through package-level state.
//
// Every method makes exactly one network call with the timeout configured on
// the implementation. Errors are wrapped with ErrUnavailable when the caller
// may retry.
type Gateway interface {
	// CreateAccount registers a new payout account with the provider.
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error)

	// GetAccount fetches the current capability state of a payout account.
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// CreateAccountLink returns a single-use, time-bounded onboarding URL.
	CreateAccountLink(ctx context.Context, req AccountLinkRequest) (*AccountLink, error)

	// CreateCheckoutSession creates a hosted checkout for a recurring price.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// WebhookVerifier authenticates and decodes inbound webhook payloads.
// Implementations must reject payloads with invalid signatures before any
// parsing happens; a verification failure is wrapped with ErrInvalidSignature.
type WebhookVerifier interface {
	VerifyAndParse(payload []byte, signature string) (Event, error)
}

// CreateAccountRequest carries the data needed to open a payout account.
type CreateAccountRequest struct {
	CreatorID uuid.UUID // travels in account metadata for reverse lookup
	Email     string
}

// Account is the provider-side view of a payout account.
type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	DisabledReason   string // empty when the account is not restricted
}

// AccountLinkRequest carries the redirect targets for hosted onboarding.
type AccountLinkRequest struct {
	AccountID  string
	RefreshURL string // where the provider sends the user when the link expired
	ReturnURL  string // where the provider sends the user after onboarding
}

// AccountLink is a single-use onboarding URL.
type AccountLink struct {
	URL       string
	ExpiresAt time.Time
}

// CheckoutRequest carries everything needed to open a hosted checkout
// against a creator's connected account. The internal identifiers are
// attached as metadata so webhook events can be mapped back without any
// provider-side lookup.
type CheckoutRequest struct {
	PriceRef           string // provider price identifier
	ConnectedAccountID string // creator's payout account, receives the funds
	BuyerID            uuid.UUID
	CommunityID        uuid.UUID
	CreatorID          uuid.UUID
	CustomerEmail      string // optional, pre-fills the checkout form
	SuccessURL         string
	CancelURL          string
}

// CheckoutSession is a hosted checkout created at the provider.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}
