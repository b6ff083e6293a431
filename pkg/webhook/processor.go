package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/communitykit/pkg/gateway"
	"github.com/dmitrymomot/communitykit/pkg/logger"
)

// Handler receives verified, deduplicated events, one method per variant.
// Implementations return nil for applied side effects, an error joined with
// ErrSkipEvent for events that must be acknowledged but not applied, and any
// other error to fail retryable so the gateway redelivers.
type Handler interface {
	HandleCheckoutCompleted(ctx context.Context, ev gateway.CheckoutCompleted) error
	HandleSubscriptionUpdated(ctx context.Context, ev gateway.SubscriptionUpdated) error
	HandleSubscriptionDeleted(ctx context.Context, ev gateway.SubscriptionDeleted) error
	HandleInvoicePaid(ctx context.Context, ev gateway.InvoicePaid) error
	HandleInvoicePaymentFailed(ctx context.Context, ev gateway.InvoicePaymentFailed) error
	HandleChargeRefunded(ctx context.Context, ev gateway.ChargeRefunded) error
}

// Processor turns raw signed webhook deliveries into at-most-once handler
// invocations: verify the signature, claim the event id in the dedup ledger,
// dispatch by variant, record the outcome. Redelivery is the normal recovery
// path for every failure past signature verification.
type Processor struct {
	verifier       gateway.WebhookVerifier
	store          EventStore
	handler        Handler
	log            *slog.Logger
	pendingTimeout time.Duration
}

// defaultPendingTimeout is how long a pending record keeps its claim before a
// redelivery may take it over. Long enough for any live handler run, short
// enough that a crashed one does not block the event past the gateway's
// redelivery schedule.
const defaultPendingTimeout = 5 * time.Minute

// Option configures a Processor.
type Option func(*Processor)

// WithPendingTimeout overrides the deadline after which a pending record is
// considered abandoned and eligible for reclaim.
func WithPendingTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.pendingTimeout = d
		}
	}
}

// NewProcessor creates a webhook processor.
// Panics on nil dependencies to fail fast during initialization.
func NewProcessor(verifier gateway.WebhookVerifier, store EventStore, handler Handler, log *slog.Logger, opts ...Option) *Processor {
	if verifier == nil {
		panic("webhook: verifier is required")
	}
	if store == nil {
		panic("webhook: event store is required")
	}
	if handler == nil {
		panic("webhook: handler is required")
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Processor{
		verifier:       verifier,
		store:          store,
		handler:        handler,
		log:            log,
		pendingTimeout: defaultPendingTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one signed delivery. The returned Result is meaningful
// only when err is nil: ResultApplied or ResultIgnored, including replays of
// already-settled events. Error cases the caller maps to transport status:
// gateway.ErrInvalidSignature (reject, no retry), ErrEventInFlight
// (concurrent duplicate, retryable), anything else (handler failure,
// retryable).
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) (Result, error) {
	ev, err := p.verifier.VerifyAndParse(payload, signature)
	if err != nil {
		return "", err
	}

	eventID := ev.EventID()
	if err := p.claim(ctx, eventID, ev.EventType()); err != nil {
		if errors.Is(err, errAlreadySettled) {
			rec, gerr := p.store.Get(ctx, eventID)
			if gerr != nil {
				return "", gerr
			}
			p.log.InfoContext(ctx, "duplicate webhook event acknowledged",
				logger.WebhookEventID(eventID),
				slog.String("result", string(rec.Result)))
			return rec.Result, nil
		}
		return "", err
	}

	result, dispatchErr := p.dispatch(ctx, ev)

	procErr := ""
	if dispatchErr != nil {
		procErr = dispatchErr.Error()
	}
	if err := p.store.MarkResult(ctx, eventID, result, procErr); err != nil {
		return "", fmt.Errorf("mark webhook event %s: %w", eventID, err)
	}

	if result == ResultFailed {
		p.log.ErrorContext(ctx, "webhook event failed, awaiting redelivery",
			logger.WebhookEventID(eventID),
			logger.EventType(ev.EventType()),
			logger.Error(dispatchErr))
		return "", dispatchErr
	}
	return result, nil
}

// errAlreadySettled is internal to claim/Process coordination.
var errAlreadySettled = errors.New("webhook event already settled")

// claim takes ownership of the event id. Exactly one concurrent delivery
// wins: the unique insert is the serialization point, and the reclaim update
// is conditional so a failed or abandoned record goes to a single retrier.
// A pending record past the processing deadline counts as abandoned: its
// owner crashed between insert and settle, and only redelivery can finish
// the event.
func (p *Processor) claim(ctx context.Context, eventID, eventType string) error {
	rec, err := p.store.Get(ctx, eventID)
	switch {
	case errors.Is(err, ErrEventNotFound):
		if err := p.store.InsertPending(ctx, eventID, eventType, time.Now().UTC()); err != nil {
			if errors.Is(err, ErrDuplicateEvent) {
				// Lost the race to a concurrent delivery of the same id.
				return ErrEventInFlight
			}
			return fmt.Errorf("insert webhook event %s: %w", eventID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("lookup webhook event %s: %w", eventID, err)
	}

	switch rec.Result {
	case ResultApplied, ResultIgnored:
		return errAlreadySettled
	case ResultPending, ResultFailed:
		return p.store.Reclaim(ctx, eventID, time.Now().UTC().Add(-p.pendingTimeout))
	default:
		return fmt.Errorf("webhook event %s has unknown result %q", eventID, rec.Result)
	}
}

// dispatch routes the event to its handler and classifies the outcome. A
// panicking handler settles as failed rather than leaving the pending record
// unsettled, so redelivery retries it like any other failure.
func (p *Processor) dispatch(ctx context.Context, ev gateway.Event) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = ResultFailed, fmt.Errorf("webhook handler panic: %v", r)
		}
	}()

	switch e := ev.(type) {
	case gateway.CheckoutCompleted:
		err = p.handler.HandleCheckoutCompleted(ctx, e)
	case gateway.SubscriptionUpdated:
		err = p.handler.HandleSubscriptionUpdated(ctx, e)
	case gateway.SubscriptionDeleted:
		err = p.handler.HandleSubscriptionDeleted(ctx, e)
	case gateway.InvoicePaid:
		err = p.handler.HandleInvoicePaid(ctx, e)
	case gateway.InvoicePaymentFailed:
		err = p.handler.HandleInvoicePaymentFailed(ctx, e)
	case gateway.ChargeRefunded:
		err = p.handler.HandleChargeRefunded(ctx, e)
	case gateway.Unrecognized:
		p.log.InfoContext(ctx, "unrecognized webhook event type ignored",
			logger.WebhookEventID(ev.EventID()),
			logger.EventType(ev.EventType()))
		return ResultIgnored, nil
	default:
		return ResultIgnored, nil
	}

	switch {
	case err == nil:
		return ResultApplied, nil
	case errors.Is(err, ErrSkipEvent):
		p.log.WarnContext(ctx, "webhook event not applicable, ignored",
			logger.WebhookEventID(ev.EventID()),
			logger.EventType(ev.EventType()),
			logger.Error(err))
		return ResultIgnored, nil
	default:
		return ResultFailed, err
	}
}
