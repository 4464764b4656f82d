package authcore

import (
	"errors"
	"time"
)

// Config is the single immutable configuration value for an [Engine].
// Construct it once, hand it to [Builder.WithConfig], and never mutate it
// afterwards. Zero values are filled by defaults; Validate rejects
// combinations the engine cannot run with.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	Lockout   LockoutConfig
	Ephemeral EphemeralConfig
	RateLimit RateLimitConfig
	Anomaly   AnomalyConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// KeyPrefix namespaces every Redis key written by the engine.
	KeyPrefix string
}

// TokenConfig controls session-token issuance. Secret is the process-wide
// HMAC key; rotation is out of scope.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// PasswordConfig holds the Argon2id parameters used for credential hashes.
type PasswordConfig struct {
	Memory      uint32 // in KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// LockoutConfig tunes the brute-force guard. The lockout window is
// anchored at the first failed attempt, not the most recent one: a burst
// of failures unlocks Duration after the first of them.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// EphemeralConfig sets the lifetimes of single-use tokens.
type EphemeralConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// RateLimitConfig maps subscription tiers to requests-per-window ceilings
// and tunes the burst limiter applied to sensitive endpoints.
type RateLimitConfig struct {
	Window      time.Duration
	PlanLimits  map[Plan]int
	BurstWindow time.Duration
	BurstLimit  int
}

// AnomalyConfig sets the trailing window over which an IP or device
// fingerprint counts as "seen" for an identity.
type AnomalyConfig struct {
	Lookback time.Duration
}

// AuditConfig controls the asynchronous event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process counters exposed by
// [Engine.MetricsSnapshot].
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the engine runs with when the
// caller sets nothing: 30m access / 7d refresh tokens, 5 failed logins
// locking for 30m, 15m verification and 1h reset tokens, and the
// free/pro/business/enterprise ceilings 60/200/500/1000 per minute.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    30 * time.Minute,
		},
		Ephemeral: EphemeralConfig{
			VerificationTTL: 15 * time.Minute,
			ResetTTL:        time.Hour,
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			PlanLimits: map[Plan]int{
				PlanFree:       60,
				PlanPro:        200,
				PlanBusiness:   500,
				PlanEnterprise: 1000,
			},
			BurstWindow: 10 * time.Second,
			BurstLimit:  10,
		},
		Anomaly: AnomalyConfig{
			Lookback: 30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		KeyPrefix: "ac",
	}
}

// Validate reports the first unusable setting, after defaults have been
// applied.
func (c Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("token secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("lockout max attempts must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if c.Ephemeral.VerificationTTL <= 0 || c.Ephemeral.ResetTTL <= 0 {
		return errors.New("ephemeral token TTLs must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	if len(c.RateLimit.PlanLimits) == 0 {
		return errors.New("rate limit plan table must not be empty")
	}
	for plan, limit := range c.RateLimit.PlanLimits {
		if limit < 1 {
			return errors.New("rate limit for plan " + string(plan) + " must be at least 1")
		}
	}
	if c.RateLimit.BurstLimit > 0 && c.RateLimit.BurstWindow <= 0 {
		return errors.New("burst limiter requires a positive window")
	}
	if c.Anomaly.Lookback <= 0 {
		return errors.New("anomaly lookback must be positive")
	}
	if c.KeyPrefix == "" {
		return errors.New("key prefix must not be empty")
	}
	return nil
}

// mergeDefaults fills zero values in cfg from DefaultConfig. The secret is
// never defaulted; a missing secret fails Validate instead.
func mergeDefaults(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Token.AccessTTL == 0 {
		cfg.Token.AccessTTL = def.Token.AccessTTL
	}
	if cfg.Token.RefreshTTL == 0 {
		cfg.Token.RefreshTTL = def.Token.RefreshTTL
	}
	if cfg.Password == (PasswordConfig{}) {
		cfg.Password = def.Password
	}
	if cfg.Lockout.MaxAttempts == 0 {
		cfg.Lockout.MaxAttempts = def.Lockout.MaxAttempts
	}
	if cfg.Lockout.Duration == 0 {
		cfg.Lockout.Duration = def.Lockout.Duration
	}
	if cfg.Ephemeral.VerificationTTL == 0 {
		cfg.Ephemeral.VerificationTTL = def.Ephemeral.VerificationTTL
	}
	if cfg.Ephemeral.ResetTTL == 0 {
		cfg.Ephemeral.ResetTTL = def.Ephemeral.ResetTTL
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = def.RateLimit.Window
	}
	if cfg.RateLimit.PlanLimits == nil {
		cfg.RateLimit.PlanLimits = def.RateLimit.PlanLimits
	}
	if cfg.RateLimit.BurstWindow == 0 {
		cfg.RateLimit.BurstWindow = def.RateLimit.BurstWindow
	}
	if cfg.RateLimit.BurstLimit == 0 {
		cfg.RateLimit.BurstLimit = def.RateLimit.BurstLimit
	}
	if cfg.Anomaly.Lookback == 0 {
		cfg.Anomaly.Lookback = def.Anomaly.Lookback
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}

	return cfg
}

// cloneConfig deep-copies the mutable parts of a Config so the engine's
// copy cannot be changed through the caller's value.
func cloneConfig(cfg Config) Config {
	out := cfg

	if cfg.Token.Secret != nil {
		out.Token.Secret = make([]byte, len(cfg.Token.Secret))
		copy(out.Token.Secret, cfg.Token.Secret)
	}
	if cfg.RateLimit.PlanLimits != nil {
		out.RateLimit.PlanLimits = make(map[Plan]int, len(cfg.RateLimit.PlanLimits))
		for plan, limit := range cfg.RateLimit.PlanLimits {
			out.RateLimit.PlanLimits[plan] = limit
		}
	}

	return out
}
