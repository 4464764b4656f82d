package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/vaultside/authcore/internal/audit"
	internalmetrics "github.com/vaultside/authcore/internal/metrics"
	"github.com/vaultside/authcore/internal/stores"
)

// VerifyEmail redeems a verify-email token and flips the identity to
// verified. The redemption is atomic in Redis: of any number of
// concurrent calls with the same token, exactly one can succeed, and
// replays keep returning [ErrEphemeralTokenUsed] until the original TTL
// elapses.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string, meta RequestMeta) (Identity, error) {
	if e == nil || e.directory == nil {
		return Identity{}, ErrEngineNotReady
	}

	ownerID, err := e.ephemeral.Redeem(ctx, rawToken, stores.PurposeVerifyEmail)
	if err != nil {
		return Identity{}, mapEphemeralErr(err)
	}

	identity, err := e.directory.GetByID(ctx, ownerID)
	if err != nil {
		return Identity{}, err
	}
	if identity.EmailVerified {
		return Identity{}, ErrAlreadyVerified
	}

	now := time.Now().UTC()
	if err := e.directory.SetVerified(ctx, identity.ID, now); err != nil {
		return Identity{}, err
	}
	identity.EmailVerified = true
	identity.VerifiedAt = now

	e.emit(ctx, internalaudit.TypeEmailVerified, identity.ID, meta, nil)
	e.metrics.Inc(internalmetrics.MetricEmailVerified)

	return identity, nil
}

// ResendVerification issues a fresh verify-email token and requests a new
// mail. Enumeration-safe: an unknown email succeeds silently; only an
// already verified identity is reported, with [ErrAlreadyVerified].
func (e *Engine) ResendVerification(ctx context.Context, email string, meta RequestMeta) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	identity, err := e.directory.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil
		}
		return err
	}
	if identity.EmailVerified {
		return ErrAlreadyVerified
	}

	raw, err := e.ephemeral.Issue(ctx, identity.ID, stores.PurposeVerifyEmail, e.config.Ephemeral.VerificationTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emit(ctx, internalaudit.TypeEmailVerificationSent, identity.ID, meta, nil)
	e.sendVerificationMail(ctx, identity.Email, raw)

	return nil
}

// mapEphemeralErr translates store sentinels into the public taxonomy.
// Everything unexpected is a store fault, and the operation fails closed.
func mapEphemeralErr(err error) error {
	switch {
	case errors.Is(err, stores.ErrNotFound):
		return ErrEphemeralTokenInvalid
	case errors.Is(err, stores.ErrExpired):
		return ErrEphemeralTokenExpired
	case errors.Is(err, stores.ErrAlreadyUsed):
		return ErrEphemeralTokenUsed
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
