package subscription_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/communitykit/pkg/gateway"
	"github.com/dmitrymomot/communitykit/pkg/subscription"
)

type stubAccounts struct {
	mu     sync.Mutex
	active bool
	err    error
}

func (a *stubAccounts) Active(ctx context.Context, creatorID uuid.UUID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, a.err
}

func (a *stubAccounts) set(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = active
}

// supersededStore serves a stale row for the first current-subscription read,
// reproducing a lookup racing a concurrent supersede of the pair's row.
type supersededStore struct {
	*subscription.MemoryStore
	stale        *subscription.Subscription
	currentReads atomic.Int64
}

func (s *supersededStore) GetCurrent(ctx context.Context, buyerID, communityID uuid.UUID) (*subscription.Subscription, error) {
	if s.currentReads.Add(1) == 1 {
		cp := *s.stale
		return &cp, nil
	}
	return s.MemoryStore.GetCurrent(ctx, buyerID, communityID)
}

type fixture struct {
	svc         *subscription.Service
	subs        *subscription.MemoryStore
	memberships *subscription.MemoryMembershipStore
	accounts    *stubAccounts
	gate        *subscription.Gate

	buyerID     uuid.UUID
	communityID uuid.UUID
	creatorID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		subs:        subscription.NewMemoryStore(),
		memberships: subscription.NewMemoryMembershipStore(),
		accounts:    &stubAccounts{active: true},
		buyerID:     uuid.New(),
		communityID: uuid.New(),
		creatorID:   uuid.New(),
	}
	f.svc = subscription.NewService(f.subs, f.memberships, f.accounts, nil, subscription.Config{
		GracePeriod: 168 * time.Hour,
	}, nil)
	f.gate = subscription.NewGate(f.memberships, nil, nil)
	return f
}

func meta(id string, at time.Time) gateway.EventMeta {
	return gateway.EventMeta{ID: id, Type: "test", Timestamp: at}
}

func (f *fixture) checkoutCompleted(at time.Time) gateway.CheckoutCompleted {
	return gateway.CheckoutCompleted{
		EventMeta:       meta("evt_checkout", at),
		SessionID:       "cs_1",
		SubscriptionRef: "sub_1",
		BuyerID:         f.buyerID,
		CommunityID:     f.communityID,
		CreatorID:       f.creatorID,
		AmountTotal:     1000,
		Currency:        "usd",
	}
}

func (f *fixture) status(t *testing.T) subscription.Status {
	t.Helper()
	sub, err := f.subs.GetCurrent(context.Background(), f.buyerID, f.communityID)
	require.NoError(t, err)
	return sub.Status
}

func TestService_TrackPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates pending row without membership", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))

		assert.Equal(t, subscription.StatusPending, f.status(t))
		// Checkout isolation: tracking an intent grants nothing.
		assert.False(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))
	})

	t.Run("idempotent for an existing pending row", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
		first, err := f.subs.GetCurrent(ctx, f.buyerID, f.communityID)
		require.NoError(t, err)

		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
		second, err := f.subs.GetCurrent(ctx, f.buyerID, f.communityID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("canceled row is superseded by a fresh pending one", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		now := time.Now().UTC()
		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(now)))
		require.NoError(t, f.svc.ApplySubscriptionDeleted(ctx, gateway.SubscriptionDeleted{
			EventMeta:       meta("evt_del", now.Add(time.Minute)),
			SubscriptionRef: "sub_1",
		}))
		require.Equal(t, subscription.StatusCanceled, f.status(t))

		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
		assert.Equal(t, subscription.StatusPending, f.status(t))
	})
}

func TestService_ApplyCheckoutCompleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("activates pending subscription and grants access", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(time.Now().UTC())))

		sub, err := f.subs.GetCurrent(ctx, f.buyerID, f.communityID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, "sub_1", sub.ProviderSubRef)
		assert.True(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))
	})

	t.Run("creates the row when no pending intent was tracked", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(time.Now().UTC())))
		assert.Equal(t, subscription.StatusActive, f.status(t))
	})

	t.Run("rejects completion for a deactivated creator", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
		f.accounts.set(false)

		err := f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(time.Now().UTC()))
		assert.ErrorIs(t, err, subscription.ErrAccountNotActive)
		assert.Equal(t, subscription.StatusPending, f.status(t))
		assert.False(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))
	})

	t.Run("re-resolves a row superseded between lookup and lock", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))

		old := time.Now().UTC().Add(-time.Hour)
		stale := &subscription.Subscription{
			ID:              uuid.New(),
			BuyerID:         f.buyerID,
			CommunityID:     f.communityID,
			CreatorID:       f.creatorID,
			Status:          subscription.StatusCanceled,
			StatusChangedAt: old,
			CreatedAt:       old,
			UpdatedAt:       old,
		}
		store := &supersededStore{MemoryStore: f.subs, stale: stale}
		svc := subscription.NewService(store, f.memberships, f.accounts, nil, subscription.Config{
			GracePeriod: 168 * time.Hour,
		}, nil)

		require.NoError(t, svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(time.Now().UTC())))

		sub, err := f.subs.GetCurrent(ctx, f.buyerID, f.communityID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.NotEqual(t, stale.ID, sub.ID)
		// After locking the superseded row the service must resolve the pair
		// again instead of mutating a row its lock does not cover.
		assert.GreaterOrEqual(t, store.currentReads.Load(), int64(3))
	})
}

func TestService_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("payment failure moves to past due with grace access", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		now := time.Now().UTC()
		require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(now)))

		require.NoError(t, f.svc.ApplyInvoicePaymentFailed(ctx, gateway.InvoicePaymentFailed{
			EventMeta:       meta("evt_fail", now.Add(time.Minute)),
			SubscriptionRef: "sub_1",
			InvoiceRef:      "in_2",
		}))

		assert.Equal(t, subscription.StatusPastDue, f.status(t))
		assert.True(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID), "grace window retains access")
	})

	t.Run("payment recovery returns to active", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		now := time.Now().UTC()
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(now)))
		require.NoError(t, f.svc.ApplyInvoicePaymentFailed(ctx, gateway.InvoicePaymentFailed{
			EventMeta:       meta("evt_fail", now.Add(time.Minute)),
			SubscriptionRef: "sub_1",
		}))

		periodEnd := now.Add(30 * 24 * time.Hour)
		require.NoError(t, f.svc.ApplyInvoicePaid(ctx, gateway.InvoicePaid{
			EventMeta:       meta("evt_paid", now.Add(2 * time.Minute)),
			SubscriptionRef: "sub_1",
			InvoiceRef:      "in_2",
			AmountPaid:      1000,
			Currency:        "usd",
			PeriodEnd:       periodEnd,
		}))

		sub, err := f.subs.GetCurrent(ctx, f.buyerID, f.communityID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, periodEnd, sub.CurrentPeriodEnd)
	})

	t.Run("events for unknown subscription fail retryable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		err := f.svc.ApplyInvoicePaid(ctx, gateway.InvoicePaid{
			EventMeta:       meta("evt_paid", time.Now().UTC()),
			SubscriptionRef: "sub_unknown",
		})
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("canceled is terminal", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		now := time.Now().UTC()
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(now)))
		require.NoError(t, f.svc.ApplySubscriptionDeleted(ctx, gateway.SubscriptionDeleted{
			EventMeta:       meta("evt_del", now.Add(time.Minute)),
			SubscriptionRef: "sub_1",
		}))
		require.Equal(t, subscription.StatusCanceled, f.status(t))

		// A stale activation arriving after cancellation is rejected.
		err := f.svc.ApplySubscriptionUpdated(ctx, gateway.SubscriptionUpdated{
			EventMeta:       meta("evt_late", now.Add(2 * time.Minute)),
			SubscriptionRef: "sub_1",
			Status:          "active",
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
		assert.Equal(t, subscription.StatusCanceled, f.status(t))
		assert.False(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))

		// Deleting again is an idempotent no-op.
		require.NoError(t, f.svc.ApplySubscriptionDeleted(ctx, gateway.SubscriptionDeleted{
			EventMeta:       meta("evt_del_2", now.Add(3 * time.Minute)),
			SubscriptionRef: "sub_1",
		}))
	})

	t.Run("redelivered deletion heals a split projection", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		now := time.Now().UTC()
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(now)))
		require.True(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))

		// A crash between the subscription write and the projection write
		// leaves the row canceled while the projection still grants.
		sub, err := f.subs.GetByProviderRef(ctx, "sub_1")
		require.NoError(t, err)
		canceledAt := now.Add(time.Minute)
		sub.Status = subscription.StatusCanceled
		sub.StatusChangedAt = canceledAt
		sub.CanceledAt = &canceledAt
		require.NoError(t, f.subs.Save(ctx, sub))
		require.True(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))

		require.NoError(t, f.svc.ApplySubscriptionDeleted(ctx, gateway.SubscriptionDeleted{
			EventMeta:       meta("evt_del_retry", canceledAt),
			SubscriptionRef: "sub_1",
		}))
		assert.False(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))
	})
}

func TestService_OutOfOrderCommutativity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Now().UTC()

	failedAt := base.Add(time.Minute)
	activeAt := base.Add(2 * time.Minute)

	run := func(t *testing.T, firstFailed bool) subscription.Status {
		t.Helper()
		f := newFixture(t)
		require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(base)))

		failed := gateway.InvoicePaymentFailed{
			EventMeta:       meta("evt_fail", failedAt),
			SubscriptionRef: "sub_1",
		}
		updated := gateway.SubscriptionUpdated{
			EventMeta:       meta("evt_upd", activeAt),
			SubscriptionRef: "sub_1",
			Status:          "active",
		}

		if firstFailed {
			require.NoError(t, f.svc.ApplyInvoicePaymentFailed(ctx, failed))
			require.NoError(t, f.svc.ApplySubscriptionUpdated(ctx, updated))
		} else {
			require.NoError(t, f.svc.ApplySubscriptionUpdated(ctx, updated))
			require.NoError(t, f.svc.ApplyInvoicePaymentFailed(ctx, failed))
		}
		return f.status(t)
	}

	// The gateway's final recorded state is active (the activation carries
	// the later timestamp); both delivery orders must converge on it.
	assert.Equal(t, subscription.StatusActive, run(t, true))
	assert.Equal(t, subscription.StatusActive, run(t, false))
}

func TestService_ConcurrentTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	now := time.Now().UTC()
	require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(now)))

	// Hammer the same subscription with interleaved paid/failed deliveries;
	// the per-subscription lock must keep row and projection consistent.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = f.svc.ApplyInvoicePaymentFailed(ctx, gateway.InvoicePaymentFailed{
				EventMeta:       meta("evt_fail", now.Add(time.Duration(i)*time.Second)),
				SubscriptionRef: "sub_1",
			})
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = f.svc.ApplyInvoicePaid(ctx, gateway.InvoicePaid{
				EventMeta:       meta("evt_paid", now.Add(time.Duration(i)*time.Second)),
				SubscriptionRef: "sub_1",
			})
		}(i)
	}
	wg.Wait()

	sub, err := f.subs.GetCurrent(ctx, f.buyerID, f.communityID)
	require.NoError(t, err)
	m, err := f.memberships.Get(ctx, f.buyerID, f.communityID)
	require.NoError(t, err)

	switch sub.Status {
	case subscription.StatusActive:
		assert.True(t, m.Active)
		assert.Nil(t, m.ExpiresAt)
	case subscription.StatusPastDue:
		assert.True(t, m.Active)
		assert.NotNil(t, m.ExpiresAt)
	default:
		t.Fatalf("unexpected final status %s", sub.Status)
	}
}

// TestService_FullScenario walks the documented end-to-end lifecycle: a $10/mo
// checkout completes, a renewal fails into the grace window, the gateway
// deletes the subscription, and a stale activation arrives after the fact.
func TestService_FullScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	base := time.Now().UTC()

	// Checkout created: pending, no access.
	require.NoError(t, f.svc.TrackPending(ctx, f.buyerID, f.communityID, f.creatorID))
	assert.False(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))

	// Checkout completed: active, access granted.
	require.NoError(t, f.svc.ApplyCheckoutCompleted(ctx, f.checkoutCompleted(base)))
	assert.Equal(t, subscription.StatusActive, f.status(t))
	assert.True(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))

	// Renewal fails: past due, access retained during grace.
	require.NoError(t, f.svc.ApplyInvoicePaymentFailed(ctx, gateway.InvoicePaymentFailed{
		EventMeta:       meta("evt_fail", base.Add(time.Hour)),
		SubscriptionRef: "sub_1",
		AmountDue:       1000,
		Currency:        "usd",
	}))
	assert.Equal(t, subscription.StatusPastDue, f.status(t))
	assert.True(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))

	// Gateway deletes the subscription: canceled, access revoked.
	require.NoError(t, f.svc.ApplySubscriptionDeleted(ctx, gateway.SubscriptionDeleted{
		EventMeta:       meta("evt_del", base.Add(2 * time.Hour)),
		SubscriptionRef: "sub_1",
	}))
	assert.Equal(t, subscription.StatusCanceled, f.status(t))
	assert.False(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))

	// A stale activation after cancellation is rejected permanently.
	err := f.svc.ApplySubscriptionUpdated(ctx, gateway.SubscriptionUpdated{
		EventMeta:       meta("evt_stale", base.Add(3 * time.Hour)),
		SubscriptionRef: "sub_1",
		Status:          "active",
	})
	assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	assert.Equal(t, subscription.StatusCanceled, f.status(t))
	assert.False(t, f.gate.HasAccess(ctx, f.buyerID, f.communityID))
}
