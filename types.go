package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/vaultside/authcore/internal/audit"
)

// Plan is a subscription tier used to select a rate-limit ceiling.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

// Identity is the account record exchanged with the external user
// directory. The core never persists it; it only reads the flags it needs
// and mutates them through [IdentityDirectory] calls.
type Identity struct {
	ID            string
	Email         string
	PasswordHash  string // empty for OAuth-only accounts
	Active        bool
	EmailVerified bool
	VerifiedAt    time.Time
	LastLoginAt   time.Time
}

// CreateIdentityInput is the input for [IdentityDirectory.Create].
type CreateIdentityInput struct {
	Email        string
	PasswordHash string
}

// IdentityDirectory is the externally owned user store. Implementations
// must return [ErrIdentityNotFound] for missing identities and
// [ErrConflict] from Create when the email is already taken.
type IdentityDirectory interface {
	GetByEmail(ctx context.Context, email string) (Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
	Create(ctx context.Context, input CreateIdentityInput) (Identity, error)
	SetVerified(ctx context.Context, id string, at time.Time) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

// PlanResolver maps an identity to its subscription tier. A nil resolver,
// a resolver error, or an unknown user all degrade to [PlanFree].
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (Plan, error)
}

// AlertKind names the security alerts handed to [NotificationSender].
type AlertKind string

const (
	AlertAccountLocked   AlertKind = "account_locked"
	AlertNewDeviceLogin  AlertKind = "new_device"
	AlertNewIPLogin      AlertKind = "new_login"
	AlertPasswordChanged AlertKind = "password_changed"
)

// NotificationSender delivers transactional security mail. Sends are
// fire-and-forget: the engine logs a failure and moves on; a committed
// state change is never rolled back or retried because a mail did not go
// out.
type NotificationSender interface {
	SendVerificationEmail(ctx context.Context, email, rawToken string) error
	SendPasswordResetEmail(ctx context.Context, email, rawToken string) error
	SendSecurityAlert(ctx context.Context, email string, kind AlertKind, ip, userAgent string) error
}

// RequestMeta carries per-request client attributes used for audit events,
// lockout identifiers, and anomaly detection. All fields are optional.
type RequestMeta struct {
	IP                string
	UserAgent         string
	DeviceFingerprint string
}

// SignupRequest is the input for [Engine.Signup].
type SignupRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	Meta            RequestMeta
}

// LoginRequest is the input for [Engine.Login].
type LoginRequest struct {
	Email    string
	Password string
	Meta     RequestMeta
}

// TokenPair is returned by [Engine.Login] and [Engine.Refresh].
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string // always "bearer"
	ExpiresIn        int64  // access token lifetime in seconds
	RefreshExpiresAt time.Time
}

// SignupResult is returned by [Engine.Signup]. The raw verification token
// is surfaced so callers embedding their own mail pipeline can use it; it
// is never stored anywhere in plain form.
type SignupResult struct {
	Identity          Identity
	VerificationToken string
}

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// AuditEvent is the append-only security event record.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's asynchronous
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel, for tests and custom
// fan-out.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Security event types emitted by the engine.
const (
	EventEmailVerificationSent  = internalaudit.TypeEmailVerificationSent
	EventEmailVerified          = internalaudit.TypeEmailVerified
	EventLoginSuccess           = internalaudit.TypeLoginSuccess
	EventLoginFailed            = internalaudit.TypeLoginFailed
	EventAccountLocked          = internalaudit.TypeAccountLocked
	EventNewDeviceLogin         = internalaudit.TypeNewDeviceLogin
	EventNewIPLogin             = internalaudit.TypeNewIPLogin
	EventLogout                 = internalaudit.TypeLogout
	EventPasswordResetRequested = internalaudit.TypePasswordResetRequested
	EventPasswordResetCompleted = internalaudit.TypePasswordResetCompleted
)
