// Package cache provides an in-memory TTL cache with a background janitor.
// It backs the ephemeral session and conversation state of the assistant.
package cache

import (
	"context"
	"sync"
	"time"
)

// Config holds cache construction parameters.
type Config struct {
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration
	// CleanupInterval is how often the janitor sweeps expired items.
	CleanupInterval time.Duration
	// MaxItems caps the cache size; 0 means unbounded.
	MaxItems int
	// OnEviction is invoked for every item removed by expiry or capacity,
	// outside the cache lock. Explicit Delete does not trigger it.
	OnEviction func(key string, value any)
}

type item struct {
	value     any
	expiresAt time.Time
}

func (i *item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// Cache is a concurrency-safe TTL map.
type Cache struct {
	config Config

	mu    sync.RWMutex
	items map[string]*item

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache and starts its janitor goroutine.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	c := &Cache{
		config: config,
		items:  make(map[string]*item),
		stop:   make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Get returns the value for key if present and unexpired.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if it.expired(time.Now()) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		if c.config.OnEviction != nil {
			c.config.OnEviction(key, it.value)
		}
		return nil, false
	}
	return it.value, true
}

// Set stores value under key with the given ttl (<= 0 uses DefaultTTL).
func (c *Cache) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	var evictedKey string
	var evictedValue any

	c.mu.Lock()
	if c.config.MaxItems > 0 && len(c.items) >= c.config.MaxItems {
		if _, exists := c.items[key]; !exists {
			evictedKey, evictedValue = c.evictSoonestLocked()
		}
	}
	c.items[key] = &item{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	if evictedKey != "" && c.config.OnEviction != nil {
		c.config.OnEviction(evictedKey, evictedValue)
	}
}

// Expiry returns the absolute expiry of key, if present.
func (c *Cache) Expiry(_ context.Context, key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	if !ok || it.expired(time.Now()) {
		return time.Time{}, false
	}
	return it.expiresAt, true
}

// Touch extends key's TTL without replacing its value. The new expiry is
// capped at ceiling when ceiling is non-zero.
func (c *Cache) Touch(_ context.Context, key string, ttl time.Duration, ceiling time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok || it.expired(time.Now()) {
		return false
	}
	next := time.Now().Add(ttl)
	if !ceiling.IsZero() && next.After(ceiling) {
		next = ceiling
	}
	it.expiresAt = next
	return true
}

// Delete removes key without invoking OnEviction.
func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Keys returns a snapshot of the live keys.
func (c *Cache) Keys(_ context.Context) []string {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for k, it := range c.items {
		if !it.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Size returns the number of stored items, including not-yet-swept expired ones.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictSoonestLocked removes the item closest to expiry. Must be called with
// the write lock held.
func (c *Cache) evictSoonestLocked() (string, any) {
	var victimKey string
	var victim *item
	for k, it := range c.items {
		if victim == nil || it.expiresAt.Before(victim.expiresAt) {
			victimKey, victim = k, it
		}
	}
	if victim == nil {
		return "", nil
	}
	delete(c.items, victimKey)
	return victimKey, victim.value
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	type evicted struct {
		key   string
		value any
	}
	var removed []evicted

	c.mu.Lock()
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
			removed = append(removed, evicted{key: k, value: it.value})
		}
	}
	c.mu.Unlock()

	if c.config.OnEviction != nil {
		for _, e := range removed {
			c.config.OnEviction(e.key, e.value)
		}
	}
}
