package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounterStore is the in-process CounterStore. Increments serialize on
// one mutex, which gives the atomic increment semantics the fixed-window
// scheme needs under concurrent requests from the same actor.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count   int
	resetAt time.Time
}

// NewMemoryCounterStore creates an empty counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*counter)}
}

// Incr implements CounterStore.
func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.After(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.resetAt, nil
}

// Sweep drops expired counters. Callers run it periodically; correctness
// does not depend on it since Incr resets lapsed windows itself.
func (s *MemoryCounterStore) Sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.counters {
		if now.After(c.resetAt) {
			delete(s.counters, key)
		}
	}
}
