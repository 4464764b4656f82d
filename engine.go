package authcore

import (
	"context"
	"log"
	"time"

	"github.com/vaultside/authcore/internal/anomaly"
	internalaudit "github.com/vaultside/authcore/internal/audit"
	"github.com/vaultside/authcore/internal/limiters"
	internalmetrics "github.com/vaultside/authcore/internal/metrics"
	"github.com/vaultside/authcore/internal/rate"
	"github.com/vaultside/authcore/internal/stores"
	"github.com/vaultside/authcore/password"
	"github.com/vaultside/authcore/token"
)

// Engine orchestrates the signup, login, refresh, logout, verification,
// and reset flows over the shared Redis store. Build one with [Builder];
// all methods are safe for concurrent use.
type Engine struct {
	config    Config
	codec     *token.Codec
	hasher    *password.Argon2
	directory IdentityDirectory
	plans     PlanResolver
	notifier  NotificationSender

	ephemeral   *stores.EphemeralStore
	revocations *stores.RevocationSet
	lockout     *limiters.LockoutGuard
	limiter     *rate.Limiter
	anomaly     *anomaly.Detector

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics
}

// Close drains and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the effective configuration, defaults applied.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// ValidateAccess decodes an access token. Refresh tokens presented here
// are rejected with [ErrTokenInvalid]; no store lookup is performed, so an
// access token cannot be revoked before its natural expiry. Keep access
// TTLs short.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Decode(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.Type != token.TypeAccess {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// emit hands a security event to the asynchronous dispatcher.
func (e *Engine) emit(ctx context.Context, eventType, userID string, meta RequestMeta, metadata map[string]string) {
	e.audit.Emit(ctx, internalaudit.Event{
		Timestamp:         time.Now().UTC(),
		EventType:         eventType,
		UserID:            userID,
		IP:                meta.IP,
		UserAgent:         meta.UserAgent,
		DeviceFingerprint: meta.DeviceFingerprint,
		Metadata:          metadata,
	})
}

// Notification sends are fire-and-forget: a failure after a committed
// state change is logged and never retried by the core.

func (e *Engine) sendVerificationMail(ctx context.Context, email, rawToken string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendVerificationEmail(ctx, email, rawToken); err != nil {
		log.Printf("authcore: verification mail to %s failed: %v", email, err)
	}
}

func (e *Engine) sendResetMail(ctx context.Context, email, rawToken string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendPasswordResetEmail(ctx, email, rawToken); err != nil {
		log.Printf("authcore: reset mail to %s failed: %v", email, err)
	}
}

func (e *Engine) sendAlert(ctx context.Context, email string, kind AlertKind, meta RequestMeta) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.SendSecurityAlert(ctx, email, kind, meta.IP, meta.UserAgent); err != nil {
		log.Printf("authcore: security alert (%s) to %s failed: %v", kind, email, err)
	}
}
