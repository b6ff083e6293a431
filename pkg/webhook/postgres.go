package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/communitykit/pkg/pg"
)

// PostgresEventStore implements EventStore on a pgx connection pool. The
// unique index on event_id carries the dedup invariant; the conditional
// reclaim update carries the single-retrier invariant.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a postgres-backed dedup ledger.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	if pool == nil {
		panic("webhook: pgx pool is required")
	}
	return &PostgresEventStore{pool: pool}
}

func (s *PostgresEventStore) InsertPending(ctx context.Context, eventID, eventType string, receivedAt time.Time) error {
	const query = `
		INSERT INTO webhook_events (event_id, event_type, result, received_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`

	_, err := s.pool.Exec(ctx, query, eventID, eventType, ResultPending, receivedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) Get(ctx context.Context, eventID string) (*Record, error) {
	const query = `
		SELECT event_id, event_type, result, last_error, received_at, updated_at
		FROM webhook_events
		WHERE event_id = $1`

	var rec Record
	err := s.pool.QueryRow(ctx, query, eventID).Scan(
		&rec.EventID, &rec.EventType, &rec.Result, &rec.LastError,
		&rec.ReceivedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("query webhook event: %w", err)
	}
	return &rec, nil
}

func (s *PostgresEventStore) MarkResult(ctx context.Context, eventID string, result Result, procErr string) error {
	const query = `
		UPDATE webhook_events
		SET result = $2, last_error = $3, updated_at = $4
		WHERE event_id = $1`

	tag, err := s.pool.Exec(ctx, query, eventID, result, procErr, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *PostgresEventStore) Reclaim(ctx context.Context, eventID string, pendingBefore time.Time) error {
	const query = `
		UPDATE webhook_events
		SET result = $2, updated_at = $3
		WHERE event_id = $1
		  AND (result = $4 OR (result = $2 AND updated_at < $5))`

	tag, err := s.pool.Exec(ctx, query, eventID, ResultPending, time.Now().UTC(), ResultFailed, pendingBefore)
	if err != nil {
		return fmt.Errorf("reclaim webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventInFlight
	}
	return nil
}
