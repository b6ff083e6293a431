package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/communitykit/pkg/pg"
)

// PostgresStore implements SessionStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("checkout: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO checkout_sessions (
			id, buyer_id, community_id, creator_id, price_ref,
			provider_session_id, status, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		session.ID, session.BuyerID, session.CommunityID, session.CreatorID,
		session.PriceRef, session.ProviderSessionID, session.Status,
		session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByProviderID(ctx context.Context, providerSessionID string) (*Session, error) {
	const query = `
		SELECT id, buyer_id, community_id, creator_id, price_ref,
		       provider_session_id, status, expires_at, created_at, completed_at
		FROM checkout_sessions
		WHERE provider_session_id = $1`

	var sess Session
	err := s.pool.QueryRow(ctx, query, providerSessionID).Scan(
		&sess.ID, &sess.BuyerID, &sess.CommunityID, &sess.CreatorID,
		&sess.PriceRef, &sess.ProviderSessionID, &sess.Status,
		&sess.ExpiresAt, &sess.CreatedAt, &sess.CompletedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("query checkout session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, session *Session) error {
	const query = `
		UPDATE checkout_sessions
		SET status = $2, completed_at = $3
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, session.ID, session.Status, session.CompletedAt)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ExpireCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE checkout_sessions
		SET status = $1
		WHERE status = $2 AND expires_at < $3`

	tag, err := s.pool.Exec(ctx, query, SessionExpired, SessionCreated, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire checkout sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
