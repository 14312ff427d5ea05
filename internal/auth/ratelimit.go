package auth

import (
	"context"
	"sync"
	"time"
)

// Rate limit defaults and the key namespace shared by every store.
const (
	DefaultMaxAttempts  = 30
	DefaultDecaySeconds = 60

	RateLimitKeyPrefix = "deployhook:ratelimit:"
)

// Store holds sliding windows of attempt timestamps per key.
//
// Attempt drops timestamps older than now-window, then records now and
// returns true if fewer than max timestamps remain. Otherwise nothing is
// recorded and it returns false. Implementations must be safe for concurrent
// use.
type Store interface {
	Attempt(ctx context.Context, key string, now time.Time, window time.Duration, max int) (bool, error)
	Close() error
}

// MemoryStore keeps windows in process memory. Limits are per process.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

// Attempt implements Store.
func (s *MemoryStore) Attempt(_ context.Context, key string, now time.Time, window time.Duration, max int) (bool, error) {
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.hits[key][:0]
	for _, ts := range s.hits[key] {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= max {
		s.hits[key] = kept
		return false, nil
	}

	s.hits[key] = append(kept, now)
	return true, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
