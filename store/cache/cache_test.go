package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, config Config) *Cache {
	t.Helper()
	c := New(config)
	t.Cleanup(c.Close)
	return c
}

func TestCache_BasicOperations(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Config{DefaultTTL: time.Minute})

	t.Run("SetAndGet", func(t *testing.T) {
		c.Set(ctx, "key1", "value1", 0)
		val, ok := c.Get(ctx, "key1")
		assert.True(t, ok)
		assert.Equal(t, "value1", val)
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		_, ok := c.Get(ctx, "missing")
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		c.Set(ctx, "key2", "value2", 0)
		c.Delete(ctx, "key2")
		_, ok := c.Get(ctx, "key2")
		assert.False(t, ok)
	})
}

func TestCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Config{DefaultTTL: time.Minute, CleanupInterval: time.Hour})

	c.Set(ctx, "expiring", "value", 30*time.Millisecond)

	_, ok := c.Get(ctx, "expiring")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	// Lazy expiry on Get even though the janitor has not swept yet.
	_, ok = c.Get(ctx, "expiring")
	assert.False(t, ok)
}

func TestCache_TouchExtendsWithinCeiling(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Config{DefaultTTL: time.Minute})

	ceiling := time.Now().Add(100 * time.Millisecond)
	c.Set(ctx, "session", "state", 50*time.Millisecond)

	require.True(t, c.Touch(ctx, "session", time.Hour, ceiling))

	expiry, ok := c.Expiry(ctx, "session")
	require.True(t, ok)
	assert.False(t, expiry.After(ceiling), "touch must not extend past the ceiling")
}

func TestCache_CapacityEviction(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	evicted := map[string]any{}
	c := newTestCache(t, Config{
		DefaultTTL: time.Minute,
		MaxItems:   2,
		OnEviction: func(key string, value any) {
			mu.Lock()
			evicted[key] = value
			mu.Unlock()
		},
	})

	c.Set(ctx, "a", 1, time.Minute)
	c.Set(ctx, "b", 2, 2*time.Minute)
	c.Set(ctx, "c", 3, 3*time.Minute)

	// "a" expires soonest, so it is the capacity victim.
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "b")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, evicted["a"])
}

func TestCache_JanitorSweepsExpired(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var swept []string
	c := newTestCache(t, Config{
		DefaultTTL:      time.Minute,
		CleanupInterval: 20 * time.Millisecond,
		OnEviction: func(key string, _ any) {
			mu.Lock()
			swept = append(swept, key)
			mu.Unlock()
		},
	})

	c.Set(ctx, "short", "v", 10*time.Millisecond)
	c.Set(ctx, "long", "v", time.Minute)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(swept) == 1 && swept[0] == "short"
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, c.Size())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Config{DefaultTTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%8))
			for j := 0; j < 100; j++ {
				c.Set(ctx, key, j, 0)
				c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
