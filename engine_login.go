package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	internalaudit "github.com/vaultside/authcore/internal/audit"
	internalmetrics "github.com/vaultside/authcore/internal/metrics"
	"github.com/vaultside/authcore/token"
)

// Login authenticates an email/password pair and returns a token pair.
//
// The check order is fixed: the lockout gate runs before credentials are
// ever touched, so a locked identifier learns nothing about the password;
// unknown emails, OAuth-only accounts, and wrong passwords all count a
// failure and return the same [ErrAuthenticationFailed]; the active and
// verified flags are checked only after the credential holds.
//
// The lockout gate fails closed: when Redis is unreachable the login is
// denied with [ErrStoreUnavailable] rather than silently skipping the
// guard.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	if e == nil || e.directory == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return TokenPair{}, err
	}

	locked, err := e.lockout.IsLocked(ctx, email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if locked {
		return TokenPair{}, ErrAccountLocked
	}

	identity, err := e.directory.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.recordFailedLogin(ctx, email, "", req.Meta)
			return TokenPair{}, ErrAuthenticationFailed
		}
		return TokenPair{}, err
	}

	// OAuth-only accounts have no credential to check. They take the
	// same path as a wrong password.
	if identity.PasswordHash == "" {
		e.recordFailedLogin(ctx, email, identity.ID, req.Meta)
		return TokenPair{}, ErrAuthenticationFailed
	}

	ok, err := e.hasher.Verify(req.Password, identity.PasswordHash)
	if err != nil || !ok {
		e.recordFailedLogin(ctx, email, identity.ID, req.Meta)
		return TokenPair{}, ErrAuthenticationFailed
	}

	if !identity.Active {
		return TokenPair{}, ErrAccountDisabled
	}
	if !identity.EmailVerified {
		return TokenPair{}, ErrEmailNotVerified
	}

	if err := e.lockout.Clear(ctx, email); err != nil {
		// Leaving a stale counter behind can only err towards locking,
		// never towards letting an attacker through.
		log.Printf("authcore: clearing failure counter for %s failed: %v", email, err)
	}

	e.observeLoginOrigin(ctx, identity, req.Meta)

	pair, err := e.issueTokenPair(identity)
	if err != nil {
		return TokenPair{}, err
	}

	if err := e.directory.SetLastLogin(ctx, identity.ID, time.Now().UTC()); err != nil {
		log.Printf("authcore: updating last login for %s failed: %v", identity.ID, err)
	}

	e.emit(ctx, internalaudit.TypeLoginSuccess, identity.ID, req.Meta, map[string]string{
		"device_fingerprint": req.Meta.DeviceFingerprint,
	})
	e.metrics.Inc(internalmetrics.MetricLoginSuccess)

	return pair, nil
}

// recordFailedLogin counts the failure and emits the audit trail. The
// login is already being denied, so a store fault here is logged rather
// than surfaced.
func (e *Engine) recordFailedLogin(ctx context.Context, email, userID string, meta RequestMeta) {
	e.metrics.Inc(internalmetrics.MetricLoginFailure)

	count, lockedNow, err := e.lockout.RecordFailure(ctx, email)
	if err != nil {
		log.Printf("authcore: recording login failure for %s failed: %v", email, err)
		return
	}

	// Unknown emails get no event: there is no identity to attach it to,
	// and logging the attempted address would leak probe targets.
	if userID == "" {
		return
	}

	eventType := internalaudit.TypeLoginFailed
	if lockedNow {
		eventType = internalaudit.TypeAccountLocked
		e.metrics.Inc(internalmetrics.MetricAccountLocked)
	}
	e.emit(ctx, eventType, userID, meta, map[string]string{
		"attempt_count": strconv.FormatInt(count, 10),
	})

	if lockedNow {
		e.sendAlert(ctx, email, AlertAccountLocked, meta)
	}
}

// observeLoginOrigin runs the anomaly detector. Advisory only: a store
// fault is logged and the login proceeds, and a detection never blocks
// authentication.
func (e *Engine) observeLoginOrigin(ctx context.Context, identity Identity, meta RequestMeta) {
	res, err := e.anomaly.Observe(ctx, identity.ID, meta.IP, meta.DeviceFingerprint)
	if err != nil {
		log.Printf("authcore: anomaly check for %s failed: %v", identity.ID, err)
		return
	}

	if !res.NewIP && !res.NewDevice {
		return
	}

	e.metrics.Inc(internalmetrics.MetricAnomalyDetected)

	eventType := internalaudit.TypeNewIPLogin
	alert := AlertNewIPLogin
	if res.NewDevice {
		eventType = internalaudit.TypeNewDeviceLogin
		alert = AlertNewDeviceLogin
	}

	e.emit(ctx, eventType, identity.ID, meta, map[string]string{
		"device_fingerprint": meta.DeviceFingerprint,
	})
	e.sendAlert(ctx, identity.Email, alert, meta)
}

func (e *Engine) issueTokenPair(identity Identity) (TokenPair, error) {
	access, err := e.codec.IssueAccess(identity.ID, token.ExtraClaims{Email: identity.Email}, 0)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, expiry, err := e.codec.IssueRefresh(identity.ID)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		ExpiresIn:        int64(e.config.Token.AccessTTL.Seconds()),
		RefreshExpiresAt: expiry,
	}, nil
}
