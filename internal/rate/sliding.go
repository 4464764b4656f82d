package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowLua prunes, counts, and conditionally records one request
// in a single atomic unit.
//
// KEYS[1] = window key
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// ARGV[3] = limit
// ARGV[4] = member for this request
//
// Returns {allowed(0|1), remaining, retry_after_ms}. A denied request is
// never added to the window.
var slidingWindowLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)

local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  local retry = window
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  if retry < 0 then
    retry = 0
  end
  return {0, 0, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window + 1000)
return {1, limit - count - 1, 0}
`)

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per (identifier, window) in Redis sorted sets.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a sliding-window [Limiter]. prefix namespaces the window
// keys.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ac"
	}
	return &Limiter{redis: redisClient, prefix: prefix}
}

func (l *Limiter) key(identifier string, window time.Duration) string {
	return l.prefix + ":rl:" + identifier + ":" + strconv.FormatInt(int64(window/time.Second), 10)
}

// Allow checks and records one request for identifier. The window member
// is a fresh UUID so simultaneous requests in the same millisecond are
// counted individually.
//
// Fail-open: when Redis is unreachable the returned Decision allows the
// request and the error is ErrUnavailable. Callers must log it; they must
// not turn it into a denial.
func (l *Limiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) (Decision, error) {
	now := time.Now().UnixMilli()

	result, err := slidingWindowLua.Run(ctx, l.redis,
		[]string{l.key(identifier, window)},
		now,
		window.Milliseconds(),
		limit,
		uuid.NewString(),
	).Result()
	if err != nil {
		return Decision{Allowed: true, Remaining: limit}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{Allowed: true, Remaining: limit}, fmt.Errorf("%w: unexpected lua result", ErrUnavailable)
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	retryMs, _ := values[2].(int64)

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// Count returns the live request count for identifier after pruning,
// without recording a request.
func (l *Limiter) Count(ctx context.Context, identifier string, window time.Duration) (int64, error) {
	key := l.key(identifier, window)
	now := time.Now().UnixMilli()

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now-window.Milliseconds(), 10))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return card.Val(), nil
}
