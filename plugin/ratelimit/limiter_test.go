package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore simulates an unreachable counter store.
type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("counter store unreachable")
}

func TestLimiter_WithinBudget(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryCounterStore(), map[Action]Budget{
		ActionMessage: {Limit: 3, Window: time.Minute},
	})

	for i := 0; i < 3; i++ {
		d := l.CheckLimit(ctx, "user-1", ActionMessage, "")
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d := l.CheckLimit(ctx, "user-1", ActionMessage, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.False(t, d.ResetAt.IsZero())
}

func TestLimiter_IndependentActionBudgets(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryCounterStore(), map[Action]Budget{
		ActionMessage:       {Limit: 1, Window: time.Minute},
		ActionSessionStart:  {Limit: 1, Window: time.Minute},
		ActionPaymentAction: {Limit: 1, Window: time.Minute},
	})

	require.True(t, l.CheckLimit(ctx, "user-1", ActionMessage, "").Allowed)
	assert.False(t, l.CheckLimit(ctx, "user-1", ActionMessage, "").Allowed)

	// Other categories keep their own counters.
	assert.True(t, l.CheckLimit(ctx, "user-1", ActionSessionStart, "").Allowed)
	assert.True(t, l.CheckLimit(ctx, "user-1", ActionPaymentAction, "").Allowed)
}

func TestLimiter_IndependentActors(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryCounterStore(), map[Action]Budget{
		ActionMessage: {Limit: 1, Window: time.Minute},
	})

	require.True(t, l.CheckLimit(ctx, "user-1", ActionMessage, "").Allowed)
	assert.False(t, l.CheckLimit(ctx, "user-1", ActionMessage, "").Allowed)
	assert.True(t, l.CheckLimit(ctx, "user-2", ActionMessage, "").Allowed)
}

func TestLimiter_OrgBudgetMustAlsoPass(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryCounterStore(), map[Action]Budget{
		ActionMessage: {Limit: 1, Window: time.Minute},
	})

	// Org budget is 10x the user budget. Ten distinct users exhaust it.
	for i := 0; i < 10; i++ {
		d := l.CheckLimit(ctx, string(rune('a'+i)), ActionMessage, "org-1")
		require.True(t, d.Allowed, "org request %d should pass", i+1)
	}

	// The 11th user is within their own budget but the org counter is spent.
	d := l.CheckLimit(ctx, "user-z", ActionMessage, "org-1")
	assert.False(t, d.Allowed)
}

func TestLimiter_WindowReset(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryCounterStore(), map[Action]Budget{
		ActionMessage: {Limit: 1, Window: 30 * time.Millisecond},
	})

	require.True(t, l.CheckLimit(ctx, "user-1", ActionMessage, "").Allowed)
	require.False(t, l.CheckLimit(ctx, "user-1", ActionMessage, "").Allowed)

	time.Sleep(40 * time.Millisecond)

	assert.True(t, l.CheckLimit(ctx, "user-1", ActionMessage, "").Allowed,
		"expired window must reset the counter")
}

func TestLimiter_FailOpen(t *testing.T) {
	ctx := context.Background()
	l := New(failingStore{}, nil)

	for i := 0; i < 100; i++ {
		d := l.CheckLimit(ctx, "user-1", ActionMessage, "org-1")
		require.True(t, d.Allowed, "fail-open: unreachable store must never block")
	}
}

func TestLimiter_UnknownActionAllowed(t *testing.T) {
	l := New(NewMemoryCounterStore(), map[Action]Budget{})
	assert.True(t, l.CheckLimit(context.Background(), "user-1", Action("unknown"), "").Allowed)
}

func TestMemoryCounterStore_ConcurrentIncrements(t *testing.T) {
	s := NewMemoryCounterStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Incr(ctx, "shared", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, _, err := s.Incr(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 51, n, "no increments may be lost under concurrency")
}
