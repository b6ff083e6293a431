package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/communitykit/pkg/checkout"
	"github.com/dmitrymomot/communitykit/pkg/gateway"
	"github.com/dmitrymomot/communitykit/pkg/ledger"
	"github.com/dmitrymomot/communitykit/pkg/subscription"
	"github.com/dmitrymomot/communitykit/pkg/webhook"
)

// EventHandler wires verified webhook events into the subscription state
// machine, the checkout session records, and the earnings ledger. It is the
// single place that decides which domain errors are skippable (acknowledged,
// never retried) versus retryable.
type EventHandler struct {
	subs     *subscription.Service
	sessions *checkout.Factory
	earnings *ledger.Ledger
	log      *slog.Logger
}

// NewEventHandler creates the webhook event handler.
// Panics on nil dependencies to fail fast during initialization.
func NewEventHandler(subs *subscription.Service, sessions *checkout.Factory, earnings *ledger.Ledger, log *slog.Logger) *EventHandler {
	if subs == nil {
		panic("billing: subscription service is required")
	}
	if sessions == nil {
		panic("billing: checkout factory is required")
	}
	if earnings == nil {
		panic("billing: earnings ledger is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &EventHandler{subs: subs, sessions: sessions, earnings: earnings, log: log}
}

// HandleCheckoutCompleted activates the subscription, closes the local
// checkout session, and books the first charge. A completion for a
// deactivated creator is acknowledged but not applied; retrying cannot make
// it valid.
func (h *EventHandler) HandleCheckoutCompleted(ctx context.Context, ev gateway.CheckoutCompleted) error {
	if err := h.subs.ApplyCheckoutCompleted(ctx, ev); err != nil {
		return skippable(err, subscription.ErrAccountNotActive, subscription.ErrInvalidTransition)
	}

	if _, err := h.sessions.MarkCompleted(ctx, ev.SessionID); err != nil {
		// The session row may live on another system or predate this module;
		// the subscription is already active, so this is not worth a retry.
		if errors.Is(err, checkout.ErrSessionNotFound) {
			h.log.WarnContext(ctx, "completed checkout has no local session",
				slog.String("provider_session_id", ev.SessionID))
		} else {
			return err
		}
	}

	if ev.AmountTotal > 0 {
		return h.earnings.Append(ctx, ledger.Entry{
			CreatorID:   ev.CreatorID,
			Kind:        ledger.KindCharge,
			Amount:      ev.AmountTotal,
			Currency:    ev.Currency,
			ExternalRef: ev.EventID(),
			OccurredAt:  ev.OccurredAt(),
		})
	}
	return nil
}

func (h *EventHandler) HandleSubscriptionUpdated(ctx context.Context, ev gateway.SubscriptionUpdated) error {
	return skippable(h.subs.ApplySubscriptionUpdated(ctx, ev), subscription.ErrInvalidTransition)
}

func (h *EventHandler) HandleSubscriptionDeleted(ctx context.Context, ev gateway.SubscriptionDeleted) error {
	return skippable(h.subs.ApplySubscriptionDeleted(ctx, ev), subscription.ErrInvalidTransition)
}

// HandleInvoicePaid applies the renewal and books the charge against the
// subscription's creator. An unknown subscription reference fails retryable:
// redelivery after the checkout completion lands will succeed.
func (h *EventHandler) HandleInvoicePaid(ctx context.Context, ev gateway.InvoicePaid) error {
	if err := h.subs.ApplyInvoicePaid(ctx, ev); err != nil {
		return skippable(err, subscription.ErrInvalidTransition)
	}

	if ev.AmountPaid <= 0 {
		return nil
	}
	sub, err := h.subs.ByProviderRef(ctx, ev.SubscriptionRef)
	if err != nil {
		return err
	}
	ref := ev.InvoiceRef
	if ref == "" {
		ref = ev.EventID()
	}
	return h.earnings.Append(ctx, ledger.Entry{
		CreatorID:   sub.CreatorID,
		Kind:        ledger.KindCharge,
		Amount:      ev.AmountPaid,
		Currency:    ev.Currency,
		ExternalRef: ref,
		OccurredAt:  ev.OccurredAt(),
	})
}

func (h *EventHandler) HandleInvoicePaymentFailed(ctx context.Context, ev gateway.InvoicePaymentFailed) error {
	return skippable(h.subs.ApplyInvoicePaymentFailed(ctx, ev), subscription.ErrInvalidTransition)
}

// HandleChargeRefunded books a compensating refund entry. Refunds without a
// creator id in metadata cannot be attributed and are acknowledged as
// skipped; retrying will not grow the metadata.
func (h *EventHandler) HandleChargeRefunded(ctx context.Context, ev gateway.ChargeRefunded) error {
	if ev.CreatorID == uuid.Nil {
		return fmt.Errorf("%w: refund %s carries no creator id", webhook.ErrSkipEvent, ev.ChargeRef)
	}
	return h.earnings.Append(ctx, ledger.Entry{
		CreatorID:   ev.CreatorID,
		Kind:        ledger.KindRefund,
		Amount:      ev.AmountRefunded,
		Currency:    ev.Currency,
		ExternalRef: ev.ChargeRef,
		OccurredAt:  ev.OccurredAt(),
	})
}

// skippable reclassifies the listed sentinels as acknowledged-but-ignored.
// Everything else passes through and fails the delivery retryable.
func skippable(err error, sentinels ...error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%w: %w", webhook.ErrSkipEvent, err)
		}
	}
	return err
}
