package connect

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// AccountStore defines persistence for connected account records.
// Each creator has exactly one account, so CreatorID is the primary key.
type AccountStore interface {
	// Get retrieves an account by creator ID.
	// Returns ErrAccountNotFound if no account exists.
	Get(ctx context.Context, creatorID uuid.UUID) (*Account, error)

	// Save creates or updates an account keyed by CreatorID.
	Save(ctx context.Context, account *Account) error
}

// MemoryAccountStore is a mutex-guarded in-memory AccountStore for tests and
// local development.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[uuid.UUID]Account)}
}

func (s *MemoryAccountStore) Get(ctx context.Context, creatorID uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[creatorID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (s *MemoryAccountStore) Save(ctx context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.CreatorID] = *account
	return nil
}
