package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/communitykit/pkg/gateway"
	"github.com/dmitrymomot/communitykit/pkg/logger"
)

// Config holds the redirect targets for hosted onboarding.
type Config struct {
	OnboardingReturnURL  string `env:"CONNECT_ONBOARDING_RETURN_URL,required"`
	OnboardingRefreshURL string `env:"CONNECT_ONBOARDING_REFRESH_URL,required"`
}

// Manager owns the lifecycle of creator payout accounts. Status changes
// applied here gate checkout creation: an account that is not active cannot
// be a checkout target.
type Manager struct {
	gw    gateway.Gateway
	store AccountStore
	cfg   Config
	log   *slog.Logger
}

// NewManager creates a connected account manager.
// Panics on nil dependencies to fail fast during initialization.
func NewManager(gw gateway.Gateway, store AccountStore, cfg Config, log *slog.Logger) *Manager {
	if gw == nil {
		panic("connect: gateway is required")
	}
	if store == nil {
		panic("connect: account store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{gw: gw, store: store, cfg: cfg, log: log}
}

// CreateAccount creates a provider-side payout account for the creator, or
// returns the existing record. Idempotent by creator ID: concurrent or
// repeated calls never produce a second provider account for the same
// creator because the local record is checked first and saved keyed by
// creator ID.
func (m *Manager) CreateAccount(ctx context.Context, creatorID uuid.UUID, email string) (*Account, error) {
	existing, err := m.store.Get(ctx, creatorID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	provider, err := m.gw.CreateAccount(ctx, gateway.CreateAccountRequest{
		CreatorID: creatorID,
		Email:     email,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, errors.Join(ErrGatewayUnavailable, err)
		}
		return nil, fmt.Errorf("create provider account: %w", err)
	}

	now := time.Now().UTC()
	account := &Account{
		CreatorID:         creatorID,
		ProviderAccountID: provider.ID,
		Status:            statusFromProvider(provider),
		ChargesEnabled:    provider.ChargesEnabled,
		PayoutsEnabled:    provider.PayoutsEnabled,
		DetailsSubmitted:  provider.DetailsSubmitted,
		DisabledReason:    provider.DisabledReason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("save connected account: %w", err)
	}

	m.log.InfoContext(ctx, "connected account created",
		logger.CreatorID(creatorID),
		slog.String("provider_account_id", provider.ID),
		slog.String("status", string(account.Status)))

	return account, nil
}

// OnboardingLink returns a single-use, time-bounded URL the creator opens
// to complete provider onboarding. Returns ErrAccountNotFound if the
// creator has not started monetization setup.
func (m *Manager) OnboardingLink(ctx context.Context, creatorID uuid.UUID) (*gateway.AccountLink, error) {
	account, err := m.store.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	link, err := m.gw.CreateAccountLink(ctx, gateway.AccountLinkRequest{
		AccountID:  account.ProviderAccountID,
		RefreshURL: m.cfg.OnboardingRefreshURL,
		ReturnURL:  m.cfg.OnboardingReturnURL,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, errors.Join(ErrGatewayUnavailable, err)
		}
		return nil, fmt.Errorf("create onboarding link: %w", err)
	}
	return link, nil
}

// RefreshStatus pulls the current capability state from the provider and
// updates the local record. Idempotent: re-running against an unchanged
// provider state writes the same record.
func (m *Manager) RefreshStatus(ctx context.Context, creatorID uuid.UUID) (*Account, error) {
	account, err := m.store.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	provider, err := m.gw.GetAccount(ctx, account.ProviderAccountID)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, errors.Join(ErrGatewayUnavailable, err)
		}
		return nil, fmt.Errorf("get provider account: %w", err)
	}

	prev := account.Status
	account.Status = statusFromProvider(provider)
	account.ChargesEnabled = provider.ChargesEnabled
	account.PayoutsEnabled = provider.PayoutsEnabled
	account.DetailsSubmitted = provider.DetailsSubmitted
	account.DisabledReason = provider.DisabledReason
	account.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("save connected account: %w", err)
	}

	if prev != account.Status {
		m.log.InfoContext(ctx, "connected account status changed",
			logger.CreatorID(creatorID),
			slog.String("from", string(prev)),
			slog.String("to", string(account.Status)))
	}

	return account, nil
}

// Deactivate turns off monetization for a creator. The account record is
// kept, never deleted; in-flight checkouts are rejected later at
// state-machine application time, not here.
func (m *Manager) Deactivate(ctx context.Context, creatorID uuid.UUID) (*Account, error) {
	account, err := m.store.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	account.Status = StatusRestricted
	account.DisabledReason = "deactivated_by_owner"
	account.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("save connected account: %w", err)
	}

	m.log.InfoContext(ctx, "connected account deactivated",
		logger.CreatorID(creatorID))

	return account, nil
}

// Active reports whether the creator's account can receive payments.
// Creators with no account record are reported as inactive, not as an error.
func (m *Manager) Active(ctx context.Context, creatorID uuid.UUID) (bool, error) {
	account, err := m.store.Get(ctx, creatorID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.IsActive(), nil
}

// Account returns the creator's account record.
// Returns ErrAccountNotFound if monetization setup has not started.
func (m *Manager) Account(ctx context.Context, creatorID uuid.UUID) (*Account, error) {
	return m.store.Get(ctx, creatorID)
}

// Status returns the onboarding status for a creator, StatusNotStarted when
// no account record exists.
func (m *Manager) Status(ctx context.Context, creatorID uuid.UUID) (Status, error) {
	account, err := m.store.Get(ctx, creatorID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return StatusNotStarted, nil
		}
		return "", err
	}
	return account.Status, nil
}

// statusFromProvider maps provider capability flags to the local status.
// A disabled reason always wins: the provider has restricted the account
// regardless of which capabilities were enabled before.
func statusFromProvider(a *gateway.Account) Status {
	switch {
	case a.DisabledReason != "":
		return StatusRestricted
	case a.ChargesEnabled && a.PayoutsEnabled:
		return StatusActive
	default:
		return StatusPending
	}
}
