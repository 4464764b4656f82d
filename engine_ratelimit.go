package authcore

import (
	"context"
	"log"
	"time"

	internalmetrics "github.com/vaultside/authcore/internal/metrics"
)

// PlanFor resolves an identity's subscription tier. A nil resolver, a
// resolver error, or a tier missing from the limit table all degrade to
// [PlanFree].
func (e *Engine) PlanFor(ctx context.Context, userID string) Plan {
	if e == nil || e.plans == nil || userID == "" {
		return PlanFree
	}

	plan, err := e.plans.PlanFor(ctx, userID)
	if err != nil {
		return PlanFree
	}
	if _, ok := e.config.RateLimit.PlanLimits[plan]; !ok {
		return PlanFree
	}
	return plan
}

// LimitFor returns the requests-per-window ceiling for a plan, falling
// back to the free tier for unknown plans.
func (e *Engine) LimitFor(plan Plan) int {
	if limit, ok := e.config.RateLimit.PlanLimits[plan]; ok {
		return limit
	}
	return e.config.RateLimit.PlanLimits[PlanFree]
}

// CheckRate records one request for identifier against its plan ceiling
// over the configured window. A denial returns [ErrRateLimitExceeded]
// alongside the decision; the decision carries the limit, the remaining
// allowance, and how long until the oldest counted request ages out.
//
// Fail-open: when Redis is unreachable the request is allowed and the
// fault is logged and counted, never turned into a denial.
func (e *Engine) CheckRate(ctx context.Context, identifier string, plan Plan) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{Allowed: true}, ErrEngineNotReady
	}
	return e.check(ctx, identifier, e.LimitFor(plan), e.config.RateLimit.Window)
}

// CheckBurst applies the short-window burst ceiling used on sensitive
// endpoints, independently of the plan limiter. When BurstLimit is zero
// or negative the burst check is disabled and always allows.
func (e *Engine) CheckBurst(ctx context.Context, identifier string) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{Allowed: true}, ErrEngineNotReady
	}
	if e.config.RateLimit.BurstLimit <= 0 {
		return RateDecision{Allowed: true, Limit: 0}, nil
	}
	return e.check(ctx, identifier+":burst", e.config.RateLimit.BurstLimit, e.config.RateLimit.BurstWindow)
}

func (e *Engine) check(ctx context.Context, identifier string, limit int, window time.Duration) (RateDecision, error) {
	dec, err := e.limiter.Allow(ctx, identifier, limit, window)
	if err != nil {
		log.Printf("authcore: rate limiter unavailable for %s, allowing: %v", identifier, err)
		e.metrics.Inc(internalmetrics.MetricRateLimitFailOpen)
		return RateDecision{Allowed: true, Limit: limit, Remaining: dec.Remaining}, nil
	}

	out := RateDecision{
		Allowed:    dec.Allowed,
		Limit:      limit,
		Remaining:  dec.Remaining,
		RetryAfter: dec.RetryAfter,
	}
	if !dec.Allowed {
		e.metrics.Inc(internalmetrics.MetricRateLimitRejected)
		return out, ErrRateLimitExceeded
	}
	return out, nil
}
