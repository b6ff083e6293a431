package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool. The unique index
// on external_ref makes Append idempotent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a postgres-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) (bool, error) {
	const query = `
		INSERT INTO earnings_entries (
			id, creator_id, kind, amount, currency, external_ref,
			occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_ref) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		entry.ID, entry.CreatorID, entry.Kind, entry.Amount, entry.Currency,
		entry.ExternalRef, entry.OccurredAt, entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) List(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]Entry, error) {
	const query = `
		SELECT id, creator_id, kind, amount, currency, external_ref,
		       occurred_at, created_at
		FROM earnings_entries
		WHERE creator_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at`

	rows, err := s.pool.Query(ctx, query, creatorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.ID, &entry.CreatorID, &entry.Kind, &entry.Amount,
			&entry.Currency, &entry.ExternalRef, &entry.OccurredAt, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
