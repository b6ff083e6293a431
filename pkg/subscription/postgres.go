package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/communitykit/pkg/pg"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a postgres-backed subscription store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

const subscriptionColumns = `
	id, buyer_id, community_id, creator_id, provider_sub_ref, status,
	current_period_end, cancel_at_period_end, status_changed_at,
	created_at, updated_at, canceled_at`

func (s *PostgresStore) GetCurrent(ctx context.Context, buyerID, communityID uuid.UUID) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE buyer_id = $1 AND community_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	return s.scanOne(s.pool.QueryRow(ctx, query, buyerID, communityID))
}

func (s *PostgresStore) GetByProviderRef(ctx context.Context, providerSubRef string) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE provider_sub_ref = $1`

	return s.scanOne(s.pool.QueryRow(ctx, query, providerSubRef))
}

func (s *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	const query = `
		INSERT INTO subscriptions (
			id, buyer_id, community_id, creator_id, provider_sub_ref, status,
			current_period_end, cancel_at_period_end, status_changed_at,
			created_at, updated_at, canceled_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		sub.ID, sub.BuyerID, sub.CommunityID, sub.CreatorID,
		sub.ProviderSubRef, sub.Status, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.StatusChangedAt,
		sub.CreatedAt, sub.UpdatedAt, sub.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, sub *Subscription) error {
	const query = `
		UPDATE subscriptions
		SET provider_sub_ref = NULLIF($2, ''), status = $3,
		    current_period_end = $4, cancel_at_period_end = $5,
		    status_changed_at = $6, updated_at = $7, canceled_at = $8
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		sub.ID, sub.ProviderSubRef, sub.Status, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.StatusChangedAt, sub.UpdatedAt, sub.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row rowScanner) (*Subscription, error) {
	var sub Subscription
	var providerRef *string
	err := row.Scan(
		&sub.ID, &sub.BuyerID, &sub.CommunityID, &sub.CreatorID,
		&providerRef, &sub.Status, &sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd, &sub.StatusChangedAt,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.CanceledAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	if providerRef != nil {
		sub.ProviderSubRef = *providerRef
	}
	return &sub, nil
}

// PostgresMembershipStore implements MembershipStore on a pgx connection
// pool.
type PostgresMembershipStore struct {
	pool *pgxpool.Pool
}

// NewPostgresMembershipStore creates a postgres-backed membership store.
func NewPostgresMembershipStore(pool *pgxpool.Pool) *PostgresMembershipStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PostgresMembershipStore{pool: pool}
}

func (s *PostgresMembershipStore) Get(ctx context.Context, buyerID, communityID uuid.UUID) (*Membership, error) {
	const query = `
		SELECT buyer_id, community_id, active, expires_at, updated_at
		FROM memberships
		WHERE buyer_id = $1 AND community_id = $2`

	var m Membership
	err := s.pool.QueryRow(ctx, query, buyerID, communityID).Scan(
		&m.BuyerID, &m.CommunityID, &m.Active, &m.ExpiresAt, &m.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	return &m, nil
}

func (s *PostgresMembershipStore) Upsert(ctx context.Context, m *Membership) error {
	const query = `
		INSERT INTO memberships (buyer_id, community_id, active, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (buyer_id, community_id) DO UPDATE
		SET active = EXCLUDED.active,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, m.BuyerID, m.CommunityID, m.Active, m.ExpiresAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}
