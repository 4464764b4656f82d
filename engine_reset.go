package authcore

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/vaultside/authcore/internal/audit"
	internalmetrics "github.com/vaultside/authcore/internal/metrics"
	"github.com/vaultside/authcore/internal/stores"
)

// RequestPasswordReset issues a reset-password token and requests the
// reset mail. Enumeration-safe: an unknown email succeeds silently.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) error {
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

	raw, err := e.ephemeral.Issue(ctx, identity.ID, stores.PurposeResetPassword, e.config.Ephemeral.ResetTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emit(ctx, internalaudit.TypePasswordResetRequested, identity.ID, meta, nil)
	e.sendResetMail(ctx, identity.Email, raw)
	e.metrics.Inc(internalmetrics.MetricPasswordResetRequest)

	return nil
}

// ResetPassword redeems a reset-password token and installs the new
// credential. The redemption is single-use and atomic; a replayed token
// returns [ErrEphemeralTokenUsed] even while its TTL is live. A security
// alert is sent after the change commits.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword, confirmPassword string, meta RequestMeta) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	if err := validatePassword(newPassword, confirmPassword); err != nil {
		return err
	}

	ownerID, err := e.ephemeral.Redeem(ctx, rawToken, stores.PurposeResetPassword)
	if err != nil {
		return mapEphemeralErr(err)
	}

	identity, err := e.directory.GetByID(ctx, ownerID)
	if err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.directory.SetPasswordHash(ctx, identity.ID, hash); err != nil {
		return err
	}

	e.emit(ctx, internalaudit.TypePasswordResetCompleted, identity.ID, meta, nil)
	e.sendAlert(ctx, identity.Email, AlertPasswordChanged, meta)
	e.metrics.Inc(internalmetrics.MetricPasswordResetCompleted)

	return nil
}
