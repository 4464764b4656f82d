// Package authcore is a Redis-coordinated identity-and-access security core
// for stateless server fleets: signed session tokens (access + refresh),
// single-use ephemeral tokens for email verification and password reset,
// brute-force lockout tracking, new-device/new-IP login detection, and a
// plan-tiered sliding-window rate limiter.
//
// The package is the public surface. It exposes [Engine], [Builder],
// [Config], sentinel errors, and the collaborator interfaces callers must
// implement ([IdentityDirectory], [PlanResolver], [NotificationSender]).
// Mechanism lives under internal/ and is never exported; token encoding,
// password hashing, and HTTP integration live in the token, password, and
// middleware packages.
//
// # Coordination model
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. The engine holds no cross-request state in process:
// every counter, window, and single-use record lives in Redis, and every
// multi-step mutation runs as one Lua script so concurrent replicas cannot
// interleave a check with its act.
//
// # Failure asymmetry
//
// On a Redis fault the rate limiter fails open (the request proceeds, the
// fault is logged) while the lockout guard, the ephemeral-token store, and
// the refresh revocation set fail closed (the sensitive operation is
// denied with [ErrStoreUnavailable]).
package authcore
