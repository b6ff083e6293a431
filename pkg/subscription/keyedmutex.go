package subscription

import "sync"

// keyedMutex serializes work per subscription id. Two webhook deliveries for
// the same subscription must not interleave between the subscription write
// and the membership recompute; deliveries for different subscriptions run
// concurrently.
type keyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex[K comparable]() *keyedMutex[K] {
	return &keyedMutex[K]{locks: make(map[K]*keyedLock)}
}

// Lock acquires the lock for key and returns its unlock func. Lock entries
// are reference-counted and removed once the last holder releases, so the map
// does not grow with the total number of subscriptions ever seen.
func (m *keyedMutex[K]) Lock(key K) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
