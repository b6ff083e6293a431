package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists ledger entries. Append reports whether a row was written:
// false means the external reference already exists and the entry was
// dropped, which callers treat as success.
type Store interface {
	Append(ctx context.Context, entry Entry) (inserted bool, err error)
	// List returns a creator's entries with OccurredAt in [from, to),
	// ordered by occurrence.
	List(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]Entry, error)
}

// MemoryStore is a mutex-guarded in-memory Store for tests and local
// development.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	byRef   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRef: make(map[string]struct{})}
}

func (s *MemoryStore) Append(ctx context.Context, entry Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byRef[entry.ExternalRef]; exists {
		return false, nil
	}
	s.byRef[entry.ExternalRef] = struct{}{}
	s.entries = append(s.entries, entry)
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.CreatorID != creatorID {
			continue
		}
		if entry.OccurredAt.Before(from) || !entry.OccurredAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}
