package authcore

import (
	"errors"
	"net/http"
)

var (
	// ErrAuthenticationFailed covers unknown email, password-less (OAuth-only)
	// accounts, and wrong passwords alike so callers cannot enumerate accounts.
	ErrAuthenticationFailed = errors.New("invalid email or password")
	// ErrAccountLocked is returned before credentials are even checked once the
	// failed-login threshold has been crossed.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountDisabled is returned for identities with the active flag cleared.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrEmailNotVerified blocks login for identities that never redeemed their
	// verification token.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrTokenInvalid is the single outcome for any session-token failure:
	// bad signature, malformed input, wrong type, or expiry.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrEphemeralTokenInvalid is returned when a verification or reset token
	// does not exist or was issued for a different purpose.
	ErrEphemeralTokenInvalid = errors.New("invalid or unknown token")
	// ErrEphemeralTokenUsed is returned on replay of an already-redeemed token,
	// for as long as its original TTL has not elapsed.
	ErrEphemeralTokenUsed = errors.New("token already used")
	// ErrEphemeralTokenExpired is returned when the token's recorded expiry has
	// passed.
	ErrEphemeralTokenExpired = errors.New("token expired")
	// ErrAlreadyVerified is returned when verifying an identity whose email is
	// already verified.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrRateLimitExceeded is returned by CheckRate/CheckBurst when the window
	// is saturated.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrConflict is returned on signup when the email already has an identity.
	ErrConflict = errors.New("account already exists")
	// ErrValidation covers password-policy violations and confirmation
	// mismatches.
	ErrValidation = errors.New("validation failed")
	// ErrIdentityNotFound is returned by IdentityDirectory implementations for
	// missing identities.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrStoreUnavailable reports a Redis fault on a fail-closed path.
	ErrStoreUnavailable = errors.New("security store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or
	// unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// HTTPStatus maps a sentinel error returned by [Engine] operations to the
// HTTP status a transport layer should answer with. Unknown errors map to
// 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthenticationFailed), errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, ErrAccountDisabled), errors.Is(err, ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrEphemeralTokenInvalid),
		errors.Is(err, ErrEphemeralTokenUsed),
		errors.Is(err, ErrEphemeralTokenExpired),
		errors.Is(err, ErrAlreadyVerified):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
