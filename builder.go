package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vaultside/authcore/internal/anomaly"
	internalaudit "github.com/vaultside/authcore/internal/audit"
	"github.com/vaultside/authcore/internal/limiters"
	internalmetrics "github.com/vaultside/authcore/internal/metrics"
	"github.com/vaultside/authcore/internal/rate"
	"github.com/vaultside/authcore/internal/stores"
	"github.com/vaultside/authcore/password"
	"github.com/vaultside/authcore/token"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens before the first Engine method call.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	directory IdentityDirectory
	plans     PlanResolver
	notifier  NotificationSender
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration. Zero fields are filled from
// defaults at Build time; the token secret is never defaulted.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared ephemeral store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the external identity directory. Required.
func (b *Builder) WithDirectory(dir IdentityDirectory) *Builder {
	b.directory = dir
	return b
}

// WithPlanResolver sets the subscription-tier resolver. Optional; without
// one every identity is rate-limited at the free tier.
func (b *Builder) WithPlanResolver(pr PlanResolver) *Builder {
	b.plans = pr
	return b
}

// WithNotifier sets the transactional mail sender. Optional; without one
// no mail is requested and flows proceed unchanged.
func (b *Builder) WithNotifier(n NotificationSender) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the destination for security events. Optional.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and collaborators and assembles the
// engine. A Builder can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("identity directory required")
	}

	cfg := mergeDefaults(cloneConfig(b.config))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		Secret:     cfg.Token.Secret,
		Issuer:     cfg.Token.Issuer,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		codec:     codec,
		hasher:    hasher,
		directory: b.directory,
		plans:     b.plans,
		notifier:  b.notifier,

		ephemeral:   stores.NewEphemeralStore(b.redis, cfg.KeyPrefix),
		revocations: stores.NewRevocationSet(b.redis, cfg.KeyPrefix),
		lockout: limiters.NewLockoutGuard(b.redis, cfg.KeyPrefix, limiters.LockoutConfig{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Duration:    cfg.Lockout.Duration,
		}),
		limiter: rate.New(b.redis, cfg.KeyPrefix),
		anomaly: anomaly.New(b.redis, cfg.KeyPrefix, cfg.Anomaly.Lookback),

		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled}),
	}

	b.built = true

	return engine, nil
}
