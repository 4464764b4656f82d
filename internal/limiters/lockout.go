package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutConfig tunes the guard.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// LockoutGuard counts failed login attempts per identifier and reports
// when the threshold has been crossed.
//
// The counter's TTL is set only on the first failure, so the lockout
// window is anchored at the first failed attempt rather than rolling from
// the latest one. Intentional: a steady trickle of failures cannot extend
// a lockout forever.
type LockoutGuard struct {
	redis  redis.UniversalClient
	prefix string
	config LockoutConfig
}

// NewLockoutGuard creates a guard namespaced under prefix.
func NewLockoutGuard(redisClient redis.UniversalClient, prefix string, cfg LockoutConfig) *LockoutGuard {
	if prefix == "" {
		prefix = "ac"
	}
	return &LockoutGuard{redis: redisClient, prefix: prefix, config: cfg}
}

func (g *LockoutGuard) key(identifier string) string {
	return g.prefix + ":fl:" + identifier
}

// RecordFailure increments the failure counter and reports whether the
// identifier is now locked.
func (g *LockoutGuard) RecordFailure(ctx context.Context, identifier string) (int64, bool, error) {
	count, err := g.redis.Incr(ctx, g.key(identifier)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if count == 1 {
		if err := g.redis.Expire(ctx, g.key(identifier), g.config.Duration).Err(); err != nil {
			return count, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	return count, count >= int64(g.config.MaxAttempts), nil
}

// IsLocked reports whether the identifier has reached the attempt
// threshold. Missing counters report unlocked.
func (g *LockoutGuard) IsLocked(ctx context.Context, identifier string) (bool, error) {
	count, err := g.redis.Get(ctx, g.key(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	return count >= int64(g.config.MaxAttempts), nil
}

// Clear deletes the failure counter, called on successful login.
func (g *LockoutGuard) Clear(ctx context.Context, identifier string) error {
	if err := g.redis.Del(ctx, g.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the current counter value. Missing keys report
// zero and do not reveal account existence.
func (g *LockoutGuard) FailureCount(ctx context.Context, identifier string) (int64, error) {
	count, err := g.redis.Get(ctx, g.key(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return count, nil
}
