package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/vaultside/authcore/internal/audit"
	internalmetrics "github.com/vaultside/authcore/internal/metrics"
	"github.com/vaultside/authcore/token"
)

// Refresh exchanges a live refresh token for a new access+refresh pair.
// The presented token is rotated out: its jti is tombstoned for its
// remaining lifetime before the new pair is issued, so replaying it later
// fails. The revocation check fails closed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.directory == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	claims, err := e.codec.Decode(refreshToken)
	if err != nil || claims.Type != token.TypeRefresh {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, ErrTokenInvalid
	}

	revoked, err := e.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, ErrTokenInvalid
	}

	identity, err := e.directory.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.metrics.Inc(internalmetrics.MetricRefreshFailure)
			return TokenPair{}, ErrAuthenticationFailed
		}
		return TokenPair{}, err
	}
	if !identity.Active {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, ErrAuthenticationFailed
	}

	// Revoke before issuing: if the tombstone cannot be written the old
	// token must stay the only live one, so the rotation is aborted.
	if err := e.revocations.Revoke(ctx, claims.ID, remainingLifetime(claims)); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pair, err := e.issueTokenPair(identity)
	if err != nil {
		return TokenPair{}, err
	}

	e.metrics.Inc(internalmetrics.MetricRefreshSuccess)

	return pair, nil
}

// Logout revokes the presented refresh token for its remaining lifetime
// and emits a logout event. The paired access token stays valid until its
// natural expiry; keep access TTLs short.
func (e *Engine) Logout(ctx context.Context, refreshToken string, meta RequestMeta) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.codec.Decode(refreshToken)
	if err != nil || claims.Type != token.TypeRefresh {
		return ErrTokenInvalid
	}

	if err := e.revocations.Revoke(ctx, claims.ID, remainingLifetime(claims)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emit(ctx, internalaudit.TypeLogout, claims.Subject, meta, nil)
	e.metrics.Inc(internalmetrics.MetricLogout)

	return nil
}

func remainingLifetime(claims *token.Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return time.Until(claims.ExpiresAt.Time)
}
