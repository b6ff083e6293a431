package checkout

import (
	"context"
	"sync"
	"time"
)

// SessionStore defines persistence for checkout sessions.
type SessionStore interface {
	// Create inserts a new session.
	Create(ctx context.Context, session *Session) error

	// GetByProviderID retrieves a session by the provider's session id.
	// Returns ErrSessionNotFound if no session exists.
	GetByProviderID(ctx context.Context, providerSessionID string) (*Session, error)

	// Save updates an existing session.
	Save(ctx context.Context, session *Session) error

	// ExpireCreatedBefore flips sessions still in the created state whose
	// expiry passed the cutoff to expired, returning how many were flipped.
	ExpireCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemorySessionStore is a mutex-guarded in-memory SessionStore for tests and
// local development.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session // keyed by provider session id
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ProviderSessionID] = *session
	return nil
}

func (s *MemorySessionStore) GetByProviderID(ctx context.Context, providerSessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[providerSessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ProviderSessionID] = *session
	return nil
}

func (s *MemorySessionStore) ExpireCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, session := range s.sessions {
		if session.Status == SessionCreated && session.ExpiresAt.Before(cutoff) {
			session.Status = SessionExpired
			s.sessions[key] = session
			n++
		}
	}
	return n, nil
}
