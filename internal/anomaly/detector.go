// Package anomaly flags logins from IP addresses or device fingerprints
// not seen on an identity's successful logins within a trailing lookback
// window.
//
// The detector keeps one sorted set per identity and dimension, scored by
// last-seen time and pruned to the lookback on every observation. It is
// advisory only: callers log a store fault and continue, and a detection
// never blocks authentication.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUnavailable = errors.New("anomaly store unavailable")
)

// observeLua prunes the seen-set, tests membership, and re-records the
// value with the current score in one atomic unit.
//
// KEYS[1] = seen-set key
// ARGV[1] = now (unix ms)
// ARGV[2] = lookback (ms)
// ARGV[3] = observed value
//
// Returns 1 when the value was already present inside the window.
var observeLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local lookback = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - lookback)

local seen = redis.call('ZSCORE', KEYS[1], ARGV[3])
redis.call('ZADD', KEYS[1], now, ARGV[3])
redis.call('PEXPIRE', KEYS[1], lookback)

if seen then
  return 1
end
return 0
`)

// Result reports which login attributes were unseen.
type Result struct {
	NewIP     bool
	NewDevice bool
}

// Detector tracks per-identity seen IPs and device fingerprints.
type Detector struct {
	redis    redis.UniversalClient
	prefix   string
	lookback time.Duration
}

// New creates a detector with the given trailing lookback window.
func New(redisClient redis.UniversalClient, prefix string, lookback time.Duration) *Detector {
	if prefix == "" {
		prefix = "ac"
	}
	return &Detector{redis: redisClient, prefix: prefix, lookback: lookback}
}

// Observe records a successful login's IP and device fingerprint for
// userID and reports which of them were unseen within the lookback.
// Empty attributes are skipped and never reported as new.
func (d *Detector) Observe(ctx context.Context, userID, ip, fingerprint string) (Result, error) {
	var res Result

	if ip != "" {
		seen, err := d.observe(ctx, d.prefix+":seen:ip:"+userID, ip)
		if err != nil {
			return res, err
		}
		res.NewIP = !seen
	}

	if fingerprint != "" {
		seen, err := d.observe(ctx, d.prefix+":seen:dev:"+userID, fingerprint)
		if err != nil {
			return res, err
		}
		res.NewDevice = !seen
	}

	return res, nil
}

func (d *Detector) observe(ctx context.Context, key, value string) (bool, error) {
	result, err := observeLua.Run(ctx, d.redis,
		[]string{key},
		time.Now().UnixMilli(),
		d.lookback.Milliseconds(),
		value,
	).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	seen, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("%w: unexpected lua result", ErrUnavailable)
	}

	return seen == 1, nil
}
