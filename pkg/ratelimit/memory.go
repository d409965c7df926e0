package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory, for tests and
// single-instance dev deployments. Production uses RedisStore: a
// process-local counter is not shared across server workers.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]time.Time)}
}

// Check mirrors the Redis script semantics: trim, add, count, report the
// oldest surviving entry. The mutex stands in for script atomicity.
func (s *MemoryStore) Check(_ context.Context, scopeKey string, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	windowStart := now.Add(-WindowSize)
	kept := s.entries[scopeKey][:0]
	for _, ts := range s.entries[scopeKey] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	s.entries[scopeKey] = kept

	return int64(len(kept)), kept[0], nil
}

// Reset deletes the scope counter.
func (s *MemoryStore) Reset(_ context.Context, scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scopeKey)
	return nil
}
