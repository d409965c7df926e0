// Package ratelimit enforces a per-scope request budget over a rolling
// 60-second window with a burst allowance, backed by a shared counter
// store. The store's trim+add+count+expire sequence executes atomically;
// on store failure the limiter fails open — availability of the
// coordination path outranks strict quota enforcement.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WindowSize is the sliding window length.
const WindowSize = 60 * time.Second

// expireMargin pads the counter key TTL past the window so cleanup never
// races an in-window count.
const expireMargin = 60 * time.Second

// Scope selects the rate-limiting partition.
type Scope string

const (
	ScopeOrg Scope = "org"
	ScopeKey Scope = "key"
)

// Policy is one scope's request budget.
type Policy struct {
	PerMinute int
	Burst     int
}

// Total is the effective window budget: steady-state plus burst.
func (p Policy) Total() int { return p.PerMinute + p.Burst }

// Result describes one rate-check outcome. Created fresh per check,
// never stored.
type Result struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"` // epoch seconds when capacity frees
	// RetryAfter is seconds until retry, set only when Allowed is false.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Store is the shared counter backend. Check must perform the
// trim+add+count+expire sequence as one atomic unit and return the
// in-window count plus the oldest surviving entry's timestamp
// (zero when unreadable).
type Store interface {
	Check(ctx context.Context, scopeKey string, now time.Time) (count int64, oldest time.Time, err error)
	Reset(ctx context.Context, scopeKey string) error
}

// ScopeKeyFor derives the counter key for a request. Unauthenticated
// callers share one anonymous scope.
func ScopeKeyFor(scope Scope, orgID, apiKeyID string) string {
	switch scope {
	case ScopeKey:
		if apiKeyID != "" {
			return "scope:key:" + apiKeyID
		}
	default:
		if orgID != "" {
			return "scope:org:" + orgID
		}
	}
	return "scope:anon"
}

// Limiter evaluates request budgets against a Store.
type Limiter struct {
	store   Store
	enabled bool
	logger  *slog.Logger
	clock   func() time.Time
}

// NewLimiter creates a limiter. When enabled is false every check
// passes unconditionally without touching the store.
func NewLimiter(store Store, enabled bool, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, enabled: enabled, logger: logger, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	l.clock = clock
	return l
}

// Check records one request against the scope and returns the decision.
// Store failures log and fail open; no error reaches the caller.
func (l *Limiter) Check(ctx context.Context, scopeKey string, policy Policy) *Result {
	now := l.clock()
	total := policy.Total()

	if !l.enabled || l.store == nil {
		return &Result{
			Allowed:   true,
			Limit:     total,
			Remaining: total,
			ResetTime: now.Add(WindowSize).Unix(),
		}
	}

	count, oldest, err := l.store.Check(ctx, scopeKey, now)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			"scope_key", scopeKey, "error", err)
		return &Result{
			Allowed:   true,
			Limit:     total,
			Remaining: total,
			ResetTime: now.Add(WindowSize).Unix(),
		}
	}

	res := &Result{
		Allowed: count <= int64(total),
		Limit:   total,
	}
	if remaining := int64(total) - count; remaining > 0 {
		res.Remaining = int(remaining)
	}

	if oldest.IsZero() {
		res.ResetTime = now.Add(WindowSize).Unix()
	} else {
		res.ResetTime = oldest.Add(WindowSize).Unix()
	}

	if !res.Allowed {
		res.RetryAfter = retryAfter(now, oldest)
	}
	return res
}

// ResetScope deletes the scope's counter outright. Idempotent: resetting
// a scope with no recorded requests is a no-op.
func (l *Limiter) ResetScope(ctx context.Context, scopeKey string) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Reset(ctx, scopeKey); err != nil {
		return fmt.Errorf("reset scope %q: %w", scopeKey, err)
	}
	return nil
}

// retryAfter derives the wait from the oldest surviving window entry,
// falling back to the full window when it is unreadable.
func retryAfter(now, oldest time.Time) int {
	if oldest.IsZero() {
		return int(WindowSize / time.Second)
	}
	wait := oldest.Add(WindowSize).Sub(now)
	secs := int(wait / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
