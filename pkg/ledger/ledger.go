package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/communitykit/pkg/logger"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindCharge Kind = "charge"
	KindRefund Kind = "refund"
	KindPayout Kind = "payout"
)

// Entry is one append-only earnings record. Amounts are positive, in the
// smallest currency unit; the kind determines the sign in aggregation.
// Corrections are new compensating entries, never mutations.
type Entry struct {
	ID        uuid.UUID
	CreatorID uuid.UUID
	Kind      Kind
	Amount    int64
	Currency  string
	// ExternalRef ties the entry to the gateway object that produced it
	// (event id, invoice id, payout id). Unique: appending the same ref
	// twice is a no-op, so webhook redelivery cannot double-book.
	ExternalRef string
	OccurredAt  time.Time
	CreatedAt   time.Time
}

// Total aggregates one creator's entries for a single currency.
type Total struct {
	Currency string
	Charges  int64
	Refunds  int64
	Payouts  int64
	// Net is charges minus refunds minus payouts: what the creator has
	// earned but not yet been paid out within the range.
	Net int64
}

// Ledger is the append-only earnings record per creator, used for payout
// reporting. No update or delete operations exist.
type Ledger struct {
	store Store
	log   *slog.Logger
}

// New creates an earnings ledger.
// Panics on nil store to fail fast during initialization.
func New(store Store, log *slog.Logger) *Ledger {
	if store == nil {
		panic("ledger: store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{store: store, log: log}
}

// Append records one entry. Idempotent by external reference: a duplicate
// append is acknowledged without writing a second row.
func (l *Ledger) Append(ctx context.Context, entry Entry) error {
	switch {
	case entry.CreatorID == uuid.Nil:
		return fmt.Errorf("%w: missing creator id", ErrInvalidEntry)
	case entry.Kind != KindCharge && entry.Kind != KindRefund && entry.Kind != KindPayout:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, entry.Kind)
	case entry.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	case entry.Currency == "":
		return fmt.Errorf("%w: missing currency", ErrInvalidEntry)
	case entry.ExternalRef == "":
		return fmt.Errorf("%w: missing external reference", ErrInvalidEntry)
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = entry.CreatedAt
	}

	inserted, err := l.store.Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if !inserted {
		l.log.InfoContext(ctx, "duplicate ledger entry skipped",
			logger.CreatorID(entry.CreatorID),
			slog.String("external_ref", entry.ExternalRef))
	}
	return nil
}

// Summary aggregates a creator's entries per currency over [from, to).
func (l *Ledger) Summary(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]Total, error) {
	entries, err := l.store.List(ctx, creatorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}

	byCurrency := make(map[string]*Total)
	order := make([]string, 0, 2)
	for _, entry := range entries {
		total, ok := byCurrency[entry.Currency]
		if !ok {
			total = &Total{Currency: entry.Currency}
			byCurrency[entry.Currency] = total
			order = append(order, entry.Currency)
		}
		switch entry.Kind {
		case KindCharge:
			total.Charges += entry.Amount
		case KindRefund:
			total.Refunds += entry.Amount
		case KindPayout:
			total.Payouts += entry.Amount
		}
	}

	totals := make([]Total, 0, len(order))
	for _, currency := range order {
		total := byCurrency[currency]
		total.Net = total.Charges - total.Refunds - total.Payouts
		totals = append(totals, *total)
	}
	return totals, nil
}
