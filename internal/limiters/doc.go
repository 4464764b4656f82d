// Package limiters holds the brute-force lockout guard. It is fail-closed:
// a Redis fault denies the sensitive operation instead of silently waving
// it through.
package limiters
