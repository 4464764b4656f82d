// Package middleware exposes net/http adapters over an authcore Engine:
// a bearer-token access guard and a plan-aware rate limiter.
//
//   - [Guard] validates the Authorization header and injects the
//     decoded claims into the request context ([ClaimsFromContext]).
//   - [RateLimit] enforces per-plan sliding-window limits keyed by
//     authenticated subject or client IP, with standard X-RateLimit
//     response headers and a JSON 429 body.
//
// This package translates HTTP semantics into Engine calls. It never
// parses tokens itself beyond a best-effort subject extraction for rate
// keys, never touches Redis, and makes no authorization decisions of
// its own.
package middleware
