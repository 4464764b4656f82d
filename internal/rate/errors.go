package rate

import "errors"

var (
	// ErrUnavailable indicates the limiter backend is unreachable. Checks
	// that return it also return an allowed Decision: the limiter fails
	// open by policy, and the caller must log the fault.
	ErrUnavailable = errors.New("rate limiter backend unavailable")
)
