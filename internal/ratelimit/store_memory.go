package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryWindowStore implements WindowStore with one sliding window per key.
// Each window carries its own mutex so concurrent requests from different
// identities never block each other; requests from the same identity are
// serialized around the evict-count-append sequence.
type InMemoryWindowStore struct {
	mu      sync.RWMutex
	windows map[string]*slidingWindow

	// now is swappable for tests.
	now func() time.Time
}

type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewInMemoryWindowStore creates a new in-memory window store.
func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

// Reserve checks the key against the limit and records the request when it
// fits. Entries older than the window are evicted eagerly, so per-key memory
// stays bounded by the limit in steady state.
func (s *InMemoryWindowStore) Reserve(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	w := s.getOrCreateWindow(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := s.now()
	w.evict(now, window)
	count := len(w.timestamps)

	if count >= limit {
		return &Result{
			Allowed: false,
			Count:   count,
			Limit:   limit,
			ResetAt: w.timestamps[0].Add(window),
		}, nil
	}

	w.timestamps = append(w.timestamps, now)
	return &Result{
		Allowed: true,
		Count:   count,
		Limit:   limit,
		ResetAt: w.timestamps[0].Add(window),
	}, nil
}

// Count returns the number of requests currently inside the window.
func (s *InMemoryWindowStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()
	if w == nil {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(s.now(), window)
	return len(w.timestamps), nil
}

// Reset clears the window for a key.
func (s *InMemoryWindowStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

func (s *InMemoryWindowStore) getOrCreateWindow(key string) *slidingWindow {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()
	if w != nil {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w = s.windows[key]; w != nil {
		return w
	}
	w = &slidingWindow{}
	s.windows[key] = w
	return w
}

// evict drops timestamps older than now-window. Must be called while holding
// the window's mutex.
func (w *slidingWindow) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
