package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
)

// RevocationSet records refresh-token IDs that must no longer be
// honored. Each tombstone lives exactly as long as the token it revokes
// would have, so the set never grows beyond the live token population.
type RevocationSet struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRevocationSet creates a set namespaced under prefix.
func NewRevocationSet(redisClient redis.UniversalClient, prefix string) *RevocationSet {
	if prefix == "" {
		prefix = "ac"
	}
	return &RevocationSet{redis: redisClient, prefix: prefix}
}

func (s *RevocationSet) key(jti string) string {
	return s.prefix + ":rvk:" + jti
}

// Revoke tombstones a token ID for its remaining lifetime. Non-positive
// remaining lifetimes are a no-op: the token is already dead.
func (s *RevocationSet) Revoke(ctx context.Context, jti string, remaining time.Duration) error {
	if jti == "" || remaining <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.key(jti), "1", remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token ID has been tombstoned. Store
// faults propagate; the caller fails closed.
func (s *RevocationSet) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return n > 0, nil
}
