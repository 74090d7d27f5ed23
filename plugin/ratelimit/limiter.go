// Package ratelimit implements fixed-window request budgets per actor and
// per organisation. The limiter fails open: if the counter store is
// unreachable the request is allowed, because availability of the
// conversation outranks strict quota enforcement.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Action is a rate-limited request category. Each category carries its own
// independent budget and window.
type Action string

const (
	ActionMessage       Action = "message"
	ActionSessionStart  Action = "session_start"
	ActionHeartbeat     Action = "heartbeat"
	ActionBookingAction Action = "booking_action"
	ActionPaymentAction Action = "payment_action"
	ActionSearch        Action = "search"
)

// Budget is the per-window request allowance for one action category.
type Budget struct {
	Limit  int
	Window time.Duration
}

// DefaultBudgets returns the per-user budgets. Organisation budgets are the
// same windows with OrgMultiplier times the limit.
func DefaultBudgets() map[Action]Budget {
	return map[Action]Budget{
		ActionMessage:       {Limit: 30, Window: time.Minute},
		ActionSessionStart:  {Limit: 10, Window: 10 * time.Minute},
		ActionHeartbeat:     {Limit: 120, Window: time.Minute},
		ActionBookingAction: {Limit: 10, Window: time.Minute},
		ActionPaymentAction: {Limit: 5, Window: time.Minute},
		ActionSearch:        {Limit: 20, Window: time.Minute},
	}
}

// OrgMultiplier scales a user budget up to the organisation-wide budget.
const OrgMultiplier = 10

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// CounterStore provides atomic fixed-window counters. The first increment of
// a key starts its TTL window; the count and window reset when the TTL lapses.
type CounterStore interface {
	// Incr atomically increments key and returns the new count and the
	// window's reset time.
	Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
}

// Limiter checks request budgets against a CounterStore.
type Limiter struct {
	store   CounterStore
	budgets map[Action]Budget
}

// New creates a limiter with the given store and budgets (nil uses defaults).
func New(store CounterStore, budgets map[Action]Budget) *Limiter {
	if budgets == nil {
		budgets = DefaultBudgets()
	}
	return &Limiter{store: store, budgets: budgets}
}

// CheckLimit verifies that actorID may perform action. When orgID is
// non-empty the organisation-scoped counter is checked as well; both must
// pass. Unknown actions are allowed.
func (l *Limiter) CheckLimit(ctx context.Context, actorID string, action Action, orgID string) Decision {
	budget, ok := l.budgets[action]
	if !ok {
		return Decision{Allowed: true}
	}

	userKey := fmt.Sprintf("rl:user:%s:%s", actorID, action)
	decision := l.check(ctx, userKey, budget)
	if !decision.Allowed {
		return decision
	}

	if orgID != "" {
		orgBudget := Budget{Limit: budget.Limit * OrgMultiplier, Window: budget.Window}
		orgKey := fmt.Sprintf("rl:org:%s:%s", orgID, action)
		orgDecision := l.check(ctx, orgKey, orgBudget)
		if !orgDecision.Allowed {
			return orgDecision
		}
		if orgDecision.Remaining < decision.Remaining {
			decision.Remaining = orgDecision.Remaining
		}
	}

	return decision
}

func (l *Limiter) check(ctx context.Context, key string, budget Budget) Decision {
	count, resetAt, err := l.store.Incr(ctx, key, budget.Window)
	if err != nil {
		// Fail open.
		slog.Warn("rate limit counter store unreachable, allowing request",
			"key", key, "error", err)
		return Decision{Allowed: true, Remaining: budget.Limit}
	}

	remaining := budget.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	if count > budget.Limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: time.Until(resetAt),
		}
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}
