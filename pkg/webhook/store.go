package webhook

import (
	"context"
	"sync"
	"time"
)

// EventStore persists the dedup ledger. InsertPending with a uniqueness
// guarantee on the event id is the serialization point for concurrent
// deliveries; Reclaim must be conditional so only one redelivery retries a
// failed or abandoned event at a time.
type EventStore interface {
	// InsertPending claims the event id. Returns ErrDuplicateEvent when a
	// record already exists, whatever its result.
	InsertPending(ctx context.Context, eventID, eventType string, receivedAt time.Time) error
	// Get returns the record or ErrEventNotFound.
	Get(ctx context.Context, eventID string) (*Record, error)
	// MarkResult records the processing outcome for a pending event.
	MarkResult(ctx context.Context, eventID string, result Result, procErr string) error
	// Reclaim takes a settled-as-failed record, or a pending record not
	// touched since pendingBefore (its owner crashed without settling), back
	// for a retry. The update must be atomic so exactly one caller wins;
	// everyone else gets ErrEventInFlight.
	Reclaim(ctx context.Context, eventID string, pendingBefore time.Time) error
}

// MemoryEventStore is a mutex-guarded in-memory EventStore for tests and
// local development.
type MemoryEventStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{records: make(map[string]Record)}
}

func (s *MemoryEventStore) InsertPending(ctx context.Context, eventID, eventType string, receivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[eventID]; exists {
		return ErrDuplicateEvent
	}
	s.records[eventID] = Record{
		EventID:    eventID,
		EventType:  eventType,
		Result:     ResultPending,
		ReceivedAt: receivedAt,
		UpdatedAt:  receivedAt,
	}
	return nil
}

func (s *MemoryEventStore) Get(ctx context.Context, eventID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &rec, nil
}

func (s *MemoryEventStore) MarkResult(ctx context.Context, eventID string, result Result, procErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[eventID]
	if !ok {
		return ErrEventNotFound
	}
	rec.Result = result
	rec.LastError = procErr
	rec.UpdatedAt = time.Now().UTC()
	s.records[eventID] = rec
	return nil
}

func (s *MemoryEventStore) Reclaim(ctx context.Context, eventID string, pendingBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[eventID]
	if !ok {
		return ErrEventNotFound
	}
	switch {
	case rec.Result == ResultFailed:
	case rec.Result == ResultPending && rec.UpdatedAt.Before(pendingBefore):
	default:
		return ErrEventInFlight
	}
	rec.Result = ResultPending
	rec.UpdatedAt = time.Now().UTC()
	s.records[eventID] = rec
	return nil
}
