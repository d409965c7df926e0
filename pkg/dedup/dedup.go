// Package dedup provides nonce-based replay suppression for accepted
// envelopes. A nonce is claimed once per organization for the envelope's
// TTL; a second claim inside that window is a duplicate.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimTimeout bounds the dedup round-trip; callers fail open past it.
const claimTimeout = 2 * time.Second

// Deduper claims nonces. Claim reports true when the nonce was unseen
// and is now recorded, false when it was already claimed.
type Deduper interface {
	Claim(ctx context.Context, orgID, nonce string, ttl time.Duration) (bool, error)
}

// RedisDeduper implements Deduper with SET NX on a shared Redis.
type RedisDeduper struct {
	client redis.Cmdable
}

// NewRedisDeduper wraps an existing Redis client.
func NewRedisDeduper(client redis.Cmdable) *RedisDeduper {
	return &RedisDeduper{client: client}
}

// Claim records the nonce if unseen. The key expires after ttl; the
// caller picks the replay window (the server uses one fixed window
// covering the signature skew on both sides).
func (d *RedisDeduper) Claim(ctx context.Context, orgID, nonce string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, claimTimeout)
	defer cancel()

	key := fmt.Sprintf("dedup:%s:%s", orgID, nonce)
	claimed, err := d.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim nonce: %w", err)
	}
	return claimed, nil
}

// MemoryDeduper implements Deduper in process memory, for tests and
// single-instance dev deployments.
type MemoryDeduper struct {
	mu     sync.Mutex
	claims map[string]time.Time
	clock  func() time.Time
}

// NewMemoryDeduper creates an empty in-memory deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{claims: make(map[string]time.Time), clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (d *MemoryDeduper) WithClock(clock func() time.Time) *MemoryDeduper {
	d.clock = clock
	return d
}

// Claim implements Deduper.
func (d *MemoryDeduper) Claim(_ context.Context, orgID, nonce string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := orgID + ":" + nonce
	now := d.clock()
	if expiry, ok := d.claims[key]; ok && expiry.After(now) {
		return false, nil
	}
	d.claims[key] = now.Add(ttl)
	return true, nil
}
