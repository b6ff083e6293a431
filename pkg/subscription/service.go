package subscription

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

// Config holds subscription lifecycle settings.
type Config struct {
	// GracePeriod is how long a past-due subscription keeps granting access
	// while the gateway retries the payment.
	GracePeriod time.Duration `env:"PASTDUE_GRACE_PERIOD" envDefault:"168h"`
}

// AccountChecker answers whether a creator can currently receive payments.
// Implemented by connect.Manager.
type AccountChecker interface {
	Active(ctx context.Context, creatorID uuid.UUID) (bool, error)
}

// Service owns the subscription lifecycle and the membership projection
// derived from it. All mutations happen under a per-subscription lock, and
// every transition rewrites the projection atomically with the subscription
// row so readers never observe the two out of sync.
type Service struct {
	subs        Store
	memberships MembershipStore
	accounts    AccountChecker
	cache       AccessCache
	cfg         Config
	log         *slog.Logger
	locks       *keyedMutex[uuid.UUID]
}

// NewService creates the subscription service. The cache is optional and may
// be nil; it is invalidated on every transition so the access gate never
// serves a stale grant longer than its TTL.
// Panics on nil required dependencies to fail fast during initialization.
func NewService(subs Store, memberships MembershipStore, accounts AccountChecker, cache AccessCache, cfg Config, log *slog.Logger) *Service {
	if subs == nil {
		panic("subscription: store is required")
	}
	if memberships == nil {
		panic("subscription: membership store is required")
	}
	if accounts == nil {
		panic("subscription: account checker is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 168 * time.Hour
	}
	return &Service{
		subs:        subs,
		memberships: memberships,
		accounts:    accounts,
		cache:       cache,
		cfg:         cfg,
		log:         log,
		locks:       newKeyedMutex[uuid.UUID](),
	}
}

// HasActive reports whether the buyer holds a live subscription for the
// community. Used as the checkout guard; past-due subscriptions count since
// the buyer still holds the relationship while payment recovers.
func (s *Service) HasActive(ctx context.Context, buyerID, communityID uuid.UUID) (bool, error) {
	sub, err := s.subs.GetCurrent(ctx, buyerID, communityID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.Live(), nil
}

// ByProviderRef returns the subscription holding the gateway-side reference,
// or ErrSubscriptionNotFound.
func (s *Service) ByProviderRef(ctx context.Context, providerSubRef string) (*Subscription, error) {
	if providerSubRef == "" {
		return nil, ErrSubscriptionNotFound
	}
	return s.subs.GetByProviderRef(ctx, providerSubRef)
}

// TrackPending records the intent a checkout creates: a pending subscription
// row the completion webhook will activate. Idempotent; a pending row for the
// pair is reused, a canceled one is superseded by a fresh row.
func (s *Service) TrackPending(ctx context.Context, buyerID, communityID, creatorID uuid.UUID) error {
	sub, err := s.subs.GetCurrent(ctx, buyerID, communityID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}
	if sub != nil && sub.Status != StatusCanceled {
		return nil
	}

	now := time.Now().UTC()
	fresh := &Subscription{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		CommunityID:     communityID,
		CreatorID:       creatorID,
		Status:          StatusPending,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.subs.Create(ctx, fresh); err != nil {
		return fmt.Errorf("create pending subscription: %w", err)
	}
	return nil
}

// ApplyCheckoutCompleted confirms the first payment for a checkout. The
// creator's account status is re-validated here, not just at checkout
// creation: a session completing after its creator deactivated monetization
// must not grant access.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, ev gateway.CheckoutCompleted) error {
	active, err := s.accounts.Active(ctx, ev.CreatorID)
	if err != nil {
		return fmt.Errorf("check creator account: %w", err)
	}
	if !active {
		return ErrAccountNotActive
	}

	for {
		sub, err := s.subs.GetCurrent(ctx, ev.BuyerID, ev.CommunityID)
		if err != nil {
			if !errors.Is(err, ErrSubscriptionNotFound) {
				return err
			}
			// No pending row: the intent was tracked on another node or lost.
			// The verified webhook is authoritative, so create the row here.
			if err := s.TrackPending(ctx, ev.BuyerID, ev.CommunityID, ev.CreatorID); err != nil {
				return err
			}
			sub, err = s.subs.GetCurrent(ctx, ev.BuyerID, ev.CommunityID)
			if err != nil {
				return err
			}
		}

		unlock := s.locks.Lock(sub.ID)
		cur, err := s.subs.GetCurrent(ctx, ev.BuyerID, ev.CommunityID)
		if err != nil {
			unlock()
			return err
		}
		// A concurrent TrackPending may have superseded the row between the
		// read and the lock; the mutation must run on the row the lock covers.
		if cur.ID != sub.ID {
			unlock()
			continue
		}
		cur.ProviderSubRef = ev.SubscriptionRef
		err = s.transition(ctx, cur, EventPaymentConfirmed, ev.OccurredAt())
		unlock()
		return err
	}
}

// ApplySubscriptionUpdated applies the absolute gateway-side status the event
// carries. Absolute application plus the stale-event guard makes delivery
// order irrelevant for everything except cancellation, which is terminal.
func (s *Service) ApplySubscriptionUpdated(ctx context.Context, ev gateway.SubscriptionUpdated) error {
	event, ok := providerEvent(ev.Status)
	if !ok {
		s.log.InfoContext(ctx, "subscription status carries no transition",
			slog.String("provider_sub_ref", ev.SubscriptionRef),
			slog.String("provider_status", ev.Status))
		return nil
	}

	return s.withSubscription(ctx, ev.SubscriptionRef, func(sub *Subscription) error {
		sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
		sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
		return s.transition(ctx, sub, event, ev.OccurredAt())
	})
}

// ApplySubscriptionDeleted cancels the subscription. Terminal: nothing moves
// a subscription out of canceled. An already-canceled subscription still
// rewrites its projection, so a redelivery after a crash between the row
// write and the projection write converges the two.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, ev gateway.SubscriptionDeleted) error {
	return s.withSubscription(ctx, ev.SubscriptionRef, func(sub *Subscription) error {
		if sub.Status == StatusCanceled {
			return s.reproject(ctx, sub)
		}
		return s.transition(ctx, sub, EventCanceled, ev.OccurredAt())
	})
}

// ApplyInvoicePaid records a successful charge: activates a pending or
// past-due subscription and advances the paid period.
func (s *Service) ApplyInvoicePaid(ctx context.Context, ev gateway.InvoicePaid) error {
	return s.withSubscription(ctx, ev.SubscriptionRef, func(sub *Subscription) error {
		if !ev.PeriodEnd.IsZero() {
			sub.CurrentPeriodEnd = ev.PeriodEnd
		}
		return s.transition(ctx, sub, EventPaymentConfirmed, ev.OccurredAt())
	})
}

// ApplyInvoicePaymentFailed moves the subscription to past due. Access is
// retained through the grace window while the gateway retries the charge.
func (s *Service) ApplyInvoicePaymentFailed(ctx context.Context, ev gateway.InvoicePaymentFailed) error {
	return s.withSubscription(ctx, ev.SubscriptionRef, func(sub *Subscription) error {
		return s.transition(ctx, sub, EventPaymentFailed, ev.OccurredAt())
	})
}

// withSubscription resolves the subscription by provider reference and runs
// fn under its per-subscription lock. An unknown reference surfaces
// ErrSubscriptionNotFound so the caller fails retryable and gateway
// redelivery heals out-of-order arrival.
func (s *Service) withSubscription(ctx context.Context, providerSubRef string, fn func(sub *Subscription) error) error {
	if providerSubRef == "" {
		return ErrSubscriptionNotFound
	}
	sub, err := s.subs.GetByProviderRef(ctx, providerSubRef)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(sub.ID)
	defer unlock()

	// Re-read under the lock; a concurrent delivery may have moved it.
	sub, err = s.subs.GetByProviderRef(ctx, providerSubRef)
	if err != nil {
		return err
	}
	return fn(sub)
}

// reproject rewrites the membership projection from the subscription's
// current state without a transition. Caller holds the subscription lock.
func (s *Service) reproject(ctx context.Context, sub *Subscription) error {
	if err := s.memberships.Upsert(ctx, project(sub, s.cfg.GracePeriod, time.Now().UTC())); err != nil {
		return fmt.Errorf("update membership projection: %w", err)
	}
	if s.cache != nil {
		s.cache.Delete(ctx, sub.BuyerID, sub.CommunityID)
	}
	return nil
}

// transition applies one lifecycle event and rewrites the membership
// projection. Caller holds the subscription lock.
func (s *Service) transition(ctx context.Context, sub *Subscription, event Event, occurredAt time.Time) error {
	if sub.Status == StatusCanceled {
		s.log.WarnContext(ctx, "event for canceled subscription dropped",
			logger.SubscriptionID(sub.ID),
			slog.String("event", string(event)))
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	// Stale guard: an event older than the one that produced the current
	// status carries no news. Cancellation is exempt, it always wins.
	if event != EventCanceled && occurredAt.Before(sub.StatusChangedAt) {
		s.log.InfoContext(ctx, "stale subscription event dropped",
			logger.SubscriptionID(sub.ID),
			slog.String("event", string(event)),
			slog.Time("occurred_at", occurredAt),
			slog.Time("status_changed_at", sub.StatusChangedAt))
		return nil
	}

	next, err := lifecycle.Next(sub.Status, event)
	if err != nil {
		return errors.Join(ErrInvalidTransition, err)
	}

	prev := sub.Status
	sub.Status = next
	sub.StatusChangedAt = occurredAt
	sub.UpdatedAt = now
	if next == StatusCanceled {
		sub.CanceledAt = &now
	}

	if err := s.subs.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if err := s.memberships.Upsert(ctx, project(sub, s.cfg.GracePeriod, now)); err != nil {
		return fmt.Errorf("update membership projection: %w", err)
	}
	if s.cache != nil {
		s.cache.Delete(ctx, sub.BuyerID, sub.CommunityID)
	}

	if prev != next {
		s.log.InfoContext(ctx, "subscription transitioned",
			logger.SubscriptionID(sub.ID),
			slog.String("from", string(prev)),
			slog.String("to", string(next)))
	}
	return nil
}

// providerEvent maps an absolute gateway subscription status to the
// lifecycle event that reaches it. Unknown or pre-payment statuses map to
// nothing and are ignored.
func providerEvent(providerStatus string) (Event, bool) {
	switch providerStatus {
	case "active", "trialing":
		return EventPaymentConfirmed, true
	case "past_due", "unpaid":
		return EventPaymentFailed, true
	case "canceled", "incomplete_expired":
		return EventCanceled, true
	default:
		return "", false
	}
}
