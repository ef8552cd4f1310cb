// Package ratelimit implements a per-client leaky-bucket limiter keyed
// on client address and wall-clock minute, per spec.md §4.8 and the
// original's services/redis.py rate_limit.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"cdn-edge/internal/domain"
)

const bucketTTLSeconds = 59

// Limiter enforces a fixed request budget per client per minute.
type Limiter struct {
	cache     domain.Cache
	enabled   bool
	perMinute int64
}

// New builds a Limiter. When enabled is false, Allow always succeeds —
// matching the original's IS_RATE_LIMIT escape hatch.
func New(cache domain.Cache, enabled bool, perMinute int64) *Limiter {
	return &Limiter{cache: cache, enabled: enabled, perMinute: perMinute}
}

// Allow increments the bucket for clientAddr and reports whether the
// request is within budget. The bucket key folds in the wall-clock
// minute so it naturally resets without an explicit sweep.
func (l *Limiter) Allow(ctx context.Context, clientAddr string) (bool, error) {
	if !l.enabled {
		return true, nil
	}

	key := fmt.Sprintf("%s:%d", clientAddr, time.Now().Minute())
	count, err := l.cache.IncrWithExpire(ctx, key, bucketTTLSeconds)
	if err != nil {
		return false, fmt.Errorf("ratelimit: incrementing %s: %w", key, err)
	}

	return count <= l.perMinute, nil
}
