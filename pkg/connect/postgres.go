package connect

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/communitykit/pkg/pg"
)

// PostgresStore implements AccountStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a postgres-backed account store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("connect: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, creatorID uuid.UUID) (*Account, error) {
	const query = `
		SELECT creator_id, provider_account_id, status, charges_enabled,
		       payouts_enabled, details_submitted, disabled_reason,
		       created_at, updated_at
		FROM connected_accounts
		WHERE creator_id = $1`

	var a Account
	err := s.pool.QueryRow(ctx, query, creatorID).Scan(
		&a.CreatorID, &a.ProviderAccountID, &a.Status, &a.ChargesEnabled,
		&a.PayoutsEnabled, &a.DetailsSubmitted, &a.DisabledReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("query connected account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) Save(ctx context.Context, account *Account) error {
	const query = `
		INSERT INTO connected_accounts (
			creator_id, provider_account_id, status, charges_enabled,
			payouts_enabled, details_submitted, disabled_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (creator_id) DO UPDATE SET
			status = EXCLUDED.status,
			charges_enabled = EXCLUDED.charges_enabled,
			payouts_enabled = EXCLUDED.payouts_enabled,
			details_submitted = EXCLUDED.details_submitted,
			disabled_reason = EXCLUDED.disabled_reason,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		account.CreatorID, account.ProviderAccountID, account.Status,
		account.ChargesEnabled, account.PayoutsEnabled, account.DetailsSubmitted,
		account.DisabledReason, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save connected account: %w", err)
	}
	return nil
}
