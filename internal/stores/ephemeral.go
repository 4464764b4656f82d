package stores

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose restricts what an ephemeral token may be redeemed for.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeResetPassword Purpose = "reset_password"
)

const rawTokenBytes = 32

var (
	ErrNotFound    = errors.New("ephemeral token not found")
	ErrExpired     = errors.New("ephemeral token expired")
	ErrAlreadyUsed = errors.New("ephemeral token already used")
	ErrUnavailable = errors.New("ephemeral store unavailable")
)

// redeemLua atomically validates a token record and flips its used flag.
//
// KEYS[1] = record key
// ARGV[1] = expected purpose
// ARGV[2] = current unix timestamp
//
// The key's TTL is left untouched when the flag flips, so a replay keeps
// resolving to already_used until the original expiry removes the record.
// A purpose mismatch does not consume the token.
var redeemLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end

local exp = tonumber(redis.call('HGET', KEYS[1], 'exp'))
if exp and tonumber(ARGV[2]) > exp then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if redis.call('HGET', KEYS[1], 'purpose') ~= ARGV[1] then
  return {err='purpose_mismatch'}
end

if redis.call('HGET', KEYS[1], 'used') == '1' then
  return {err='already_used'}
end

redis.call('HSET', KEYS[1], 'used', '1')
return redis.call('HGET', KEYS[1], 'owner')
`)

// EphemeralStore issues and redeems single-use, TTL-bound tokens for
// email verification and password reset.
type EphemeralStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewEphemeralStore creates a store namespaced under prefix.
func NewEphemeralStore(redisClient redis.UniversalClient, prefix string) *EphemeralStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &EphemeralStore{redis: redisClient, prefix: prefix}
}

// key derives the record key from the SHA-256 of the raw token. The raw
// secret itself is never written to Redis.
func (s *EphemeralStore) key(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return s.prefix + ":et:" + hex.EncodeToString(sum[:])
}

// Issue generates a URL-safe random token and stores its record with ttl.
// The returned raw token carries 256 bits of entropy.
func (s *EphemeralStore) Issue(ctx context.Context, ownerID string, purpose Purpose, ttl time.Duration) (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	key := s.key(raw)
	expiresAt := time.Now().Add(ttl).Unix()

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"owner", ownerID,
		"purpose", string(purpose),
		"used", "0",
		"exp", strconv.FormatInt(expiresAt, 10),
	)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return raw, nil
}

// Redeem consumes the token, returning its owner. Exactly one call per
// token can ever succeed; replays return ErrAlreadyUsed for the remainder
// of the original TTL.
func (s *EphemeralStore) Redeem(ctx context.Context, raw string, purpose Purpose) (string, error) {
	result, err := redeemLua.Run(ctx, s.redis,
		[]string{s.key(raw)},
		string(purpose),
		time.Now().Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "purpose_mismatch":
			return "", ErrNotFound
		case "expired":
			return "", ErrExpired
		case "already_used":
			return "", ErrAlreadyUsed
		default:
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	owner, ok := result.(string)
	if !ok || owner == "" {
		return "", fmt.Errorf("%w: unexpected lua result", ErrUnavailable)
	}

	return owner, nil
}
