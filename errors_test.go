package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrAuthenticationFailed, http.StatusUnauthorized},
		{ErrTokenInvalid, http.StatusUnauthorized},
		{ErrAccountLocked, http.StatusLocked},
		{ErrAccountDisabled, http.StatusForbidden},
		{ErrEmailNotVerified, http.StatusForbidden},
		{ErrIdentityNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusUnprocessableEntity},
		{ErrEphemeralTokenInvalid, http.StatusUnprocessableEntity},
		{ErrEphemeralTokenUsed, http.StatusUnprocessableEntity},
		{ErrEphemeralTokenExpired, http.StatusUnprocessableEntity},
		{ErrAlreadyVerified, http.StatusUnprocessableEntity},
		{ErrRateLimitExceeded, http.StatusTooManyRequests},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHTTPStatusSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("%w: dial tcp: connection refused", ErrStoreUnavailable)
	if got := HTTPStatus(wrapped); got != http.StatusServiceUnavailable {
		t.Fatalf("wrapped error mapped to %d, want 503", got)
	}
}
