package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/communitykit/pkg/connect"
	"github.com/dmitrymomot/communitykit/pkg/gateway"
	"github.com/dmitrymomot/communitykit/pkg/logger"
)

// Config holds checkout session settings.
type Config struct {
	SessionTTL time.Duration `env:"CHECKOUT_SESSION_TTL" envDefault:"24h"`
	SuccessURL string        `env:"CHECKOUT_SUCCESS_URL,required"`
	CancelURL  string        `env:"CHECKOUT_CANCEL_URL,required"`
}

// CommunityResolver maps a community to its owning creator. Implemented by
// the host application's community layer.
type CommunityResolver interface {
	CreatorOf(ctx context.Context, communityID uuid.UUID) (uuid.UUID, error)
}

// AccountSource provides creator payout account records, implemented by
// connect.Manager.
type AccountSource interface {
	Account(ctx context.Context, creatorID uuid.UUID) (*connect.Account, error)
}

// SubscriptionGuard answers whether a buyer already holds a live
// subscription, and records the pending intent a checkout creates.
// Implemented by the subscription service.
type SubscriptionGuard interface {
	HasActive(ctx context.Context, buyerID, communityID uuid.UUID) (bool, error)
	TrackPending(ctx context.Context, buyerID, communityID, creatorID uuid.UUID) error
}

// Options carries optional checkout parameters.
type Options struct {
	Email string // pre-fill billing email if known
}

// Factory builds hosted checkout sessions for paid community memberships.
// Creating a checkout grants nothing: the buyer can abandon it, and only a
// verified webhook later commits subscription or membership state.
type Factory struct {
	gw          gateway.Gateway
	sessions    SessionStore
	communities CommunityResolver
	accounts    AccountSource
	subs        SubscriptionGuard
	cfg         Config
	log         *slog.Logger
}

// NewFactory creates a checkout session factory.
// Panics on nil dependencies to fail fast during initialization.
func NewFactory(gw gateway.Gateway, sessions SessionStore, communities CommunityResolver, accounts AccountSource, subs SubscriptionGuard, cfg Config, log *slog.Logger) *Factory {
	if gw == nil {
		panic("checkout: gateway is required")
	}
	if sessions == nil {
		panic("checkout: session store is required")
	}
	if communities == nil {
		panic("checkout: community resolver is required")
	}
	if accounts == nil {
		panic("checkout: account source is required")
	}
	if subs == nil {
		panic("checkout: subscription guard is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Factory{
		gw:          gw,
		sessions:    sessions,
		communities: communities,
		accounts:    accounts,
		subs:        subs,
		cfg:         cfg,
		log:         log,
	}
}

// CreateCheckout opens a hosted checkout for the buyer against the
// community's priced offering. Rejects with ErrAccountNotActive when the
// creator cannot receive payments and ErrAlreadySubscribed when the buyer
// already holds an active subscription for the community.
func (f *Factory) CreateCheckout(ctx context.Context, buyerID, communityID uuid.UUID, priceRef string, opts Options) (*Checkout, error) {
	creatorID, err := f.communities.CreatorOf(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("resolve community creator: %w", err)
	}

	account, err := f.accounts.Account(ctx, creatorID)
	if err != nil {
		if errors.Is(err, connect.ErrAccountNotFound) {
			return nil, ErrAccountNotActive
		}
		return nil, err
	}
	if !account.IsActive() {
		return nil, ErrAccountNotActive
	}

	active, err := f.subs.HasActive(ctx, buyerID, communityID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrAlreadySubscribed
	}

	provider, err := f.gw.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		PriceRef:           priceRef,
		ConnectedAccountID: account.ProviderAccountID,
		BuyerID:            buyerID,
		CommunityID:        communityID,
		CreatorID:          creatorID,
		CustomerEmail:      opts.Email,
		SuccessURL:         f.cfg.SuccessURL,
		CancelURL:          f.cfg.CancelURL,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, errors.Join(ErrGatewayUnavailable, err)
		}
		return nil, fmt.Errorf("create provider checkout: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := provider.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(f.cfg.SessionTTL)
	}

	session := &Session{
		ID:                uuid.New(),
		BuyerID:           buyerID,
		CommunityID:       communityID,
		CreatorID:         creatorID,
		PriceRef:          priceRef,
		ProviderSessionID: provider.ID,
		Status:            SessionCreated,
		ExpiresAt:         expiresAt,
		CreatedAt:         now,
	}
	if err := f.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	// The pending intent is tracked on the subscription side so the state
	// machine has a row to activate when the completion webhook lands.
	if err := f.subs.TrackPending(ctx, buyerID, communityID, creatorID); err != nil {
		return nil, fmt.Errorf("track pending subscription: %w", err)
	}

	f.log.InfoContext(ctx, "checkout session created",
		logger.BuyerID(buyerID),
		logger.CommunityID(communityID),
		slog.String("provider_session_id", provider.ID))

	return &Checkout{URL: provider.URL, SessionID: session.ID}, nil
}

// MarkCompleted transitions a session to completed. Called only by the
// webhook pipeline once the completion event is verified. Idempotent: a
// session already completed is returned unchanged. Sessions the TTL sweep
// marked expired still complete, the provider is the source of truth for
// whether payment actually happened.
func (f *Factory) MarkCompleted(ctx context.Context, providerSessionID string) (*Session, error) {
	session, err := f.sessions.GetByProviderID(ctx, providerSessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionCompleted {
		return session, nil
	}

	now := time.Now().UTC()
	session.Status = SessionCompleted
	session.CompletedAt = &now

	if err := f.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}
	return session, nil
}

// ExpireStale flips abandoned sessions past their TTL to expired. Meant to
// run periodically; the exact cadence does not matter for correctness since
// completion always wins over expiry.
func (f *Factory) ExpireStale(ctx context.Context) (int64, error) {
	n, err := f.sessions.ExpireCreatedBefore(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire checkout sessions: %w", err)
	}
	if n > 0 {
		f.log.InfoContext(ctx, "expired abandoned checkout sessions", slog.Int64("count", n))
	}
	return n, nil
}
