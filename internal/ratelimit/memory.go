package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. Counters live as long as the
// process; Sweep drops the ones whose window has long elapsed.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*Counter)}
}

// Increment resets the counter when the window elapsed, then increments it.
func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		c = &Counter{WindowStart: now}
		s.counters[key] = c
	}
	if now.Sub(c.WindowStart) >= window {
		c.Count = 0
		c.WindowStart = now
	}
	c.Count++
	return *c, nil
}

// Sweep removes counters whose window started before cutoff.
func (s *MemoryStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.counters {
		if c.WindowStart.Before(cutoff) {
			delete(s.counters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
