package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store persists subscription rows.
type Store interface {
	// GetCurrent returns the latest subscription for the pair, canceled ones
	// included, or ErrSubscriptionNotFound.
	GetCurrent(ctx context.Context, buyerID, communityID uuid.UUID) (*Subscription, error)
	// GetByProviderRef resolves a subscription by its gateway-side reference.
	GetByProviderRef(ctx context.Context, providerSubRef string) (*Subscription, error)
	Create(ctx context.Context, sub *Subscription) error
	Save(ctx context.Context, sub *Subscription) error
}

// MembershipStore persists the access projection.
type MembershipStore interface {
	Get(ctx context.Context, buyerID, communityID uuid.UUID) (*Membership, error)
	Upsert(ctx context.Context, m *Membership) error
}

type pairKey struct {
	buyerID     uuid.UUID
	communityID uuid.UUID
}

// MemoryStore is a mutex-guarded in-memory Store for tests and local
// development.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Subscription
	byPair map[pairKey]uuid.UUID // latest subscription per pair
	byRef  map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]Subscription),
		byPair: make(map[pairKey]uuid.UUID),
		byRef:  make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) GetCurrent(ctx context.Context, buyerID, communityID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{buyerID, communityID}]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	sub := s.byID[id]
	return &sub, nil
}

func (s *MemoryStore) GetByProviderRef(ctx context.Context, providerSubRef string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRef[providerSubRef]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	sub := s.byID[id]
	return &sub, nil
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sub.ID] = *sub
	s.byPair[pairKey{sub.BuyerID, sub.CommunityID}] = sub.ID
	if sub.ProviderSubRef != "" {
		s.byRef[sub.ProviderSubRef] = sub.ID
	}
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, sub *Subscription) error {
	return s.Create(ctx, sub)
}

// MemoryMembershipStore is a mutex-guarded in-memory MembershipStore.
type MemoryMembershipStore struct {
	mu    sync.RWMutex
	items map[pairKey]Membership
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{items: make(map[pairKey]Membership)}
}

func (s *MemoryMembershipStore) Get(ctx context.Context, buyerID, communityID uuid.UUID) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[pairKey{buyerID, communityID}]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	return &m, nil
}

func (s *MemoryMembershipStore) Upsert(ctx context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[pairKey{m.BuyerID, m.CommunityID}] = *m
	return nil
}
