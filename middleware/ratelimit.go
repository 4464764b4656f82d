package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	authcore "github.com/vaultside/authcore"
)

// RateLimitOptions configures the [RateLimit] middleware. The zero value
// limits every non-OPTIONS request under the plan limiter only.
type RateLimitOptions struct {
	// ExcludedPaths are exact request paths that bypass limiting
	// entirely, typically health and documentation endpoints.
	ExcludedPaths []string

	// BurstPaths are exact request paths that must additionally pass
	// the short-window burst limiter, typically login and signup.
	BurstPaths []string

	// UpgradeURL is included in 429 bodies for every plan below
	// enterprise. Empty omits the field.
	UpgradeURL string
}

type rateLimitError struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
	Limit      int    `json:"limit"`
	UpgradeURL string `json:"upgrade_url,omitempty"`
}

// RateLimit enforces the engine's per-plan sliding-window limit on every
// request. Requests are keyed by authenticated subject when one is
// available and by client IP otherwise, so unauthenticated clients
// behind one NAT share a bucket while logged-in users do not.
//
// Allowed responses carry X-RateLimit-Limit, X-RateLimit-Remaining,
// X-RateLimit-Reset (epoch seconds), and X-RateLimit-Plan. A rejection
// is 429 with Retry-After and a JSON body. Store faults fail open.
func RateLimit(engine *authcore.Engine, opts RateLimitOptions) func(http.Handler) http.Handler {
	excluded := pathSet(opts.ExcludedPaths)
	burst := pathSet(opts.BurstPaths)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || r.Method == http.MethodOptions || excluded[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			identifier, userID := requestIdentifier(engine, r)
			plan := engine.PlanFor(r.Context(), userID)

			if burst[r.URL.Path] {
				if dec, err := engine.CheckBurst(r.Context(), identifier); errors.Is(err, authcore.ErrRateLimitExceeded) {
					writeRateLimited(w, plan, dec, opts.UpgradeURL)
					return
				}
			}

			dec, err := engine.CheckRate(r.Context(), identifier, plan)
			if errors.Is(err, authcore.ErrRateLimitExceeded) {
				writeRateLimited(w, plan, dec, opts.UpgradeURL)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(engine.Config().RateLimit.Window).Unix(), 10))
			h.Set("X-RateLimit-Plan", string(plan))

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, plan authcore.Plan, dec authcore.RateDecision, upgradeURL string) {
	retry := int64(dec.RetryAfter / time.Second)
	if dec.RetryAfter%time.Second != 0 {
		retry++
	}
	if retry < 1 {
		retry = 1
	}

	body := rateLimitError{
		Error:      "rate_limit_exceeded",
		Message:    fmt.Sprintf("Rate limit of %d requests exceeded. Try again in %d seconds.", dec.Limit, retry),
		RetryAfter: retry,
		Limit:      dec.Limit,
	}
	if plan != authcore.PlanEnterprise {
		body.UpgradeURL = upgradeURL
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(body)
}

// requestIdentifier picks the rate key for a request. Precedence:
// claims injected by [Guard], then a best-effort decode of the bearer
// token, then the client IP. Subjects and IPs live in separate key
// namespaces so a forged Authorization header cannot reach another
// client's bucket without also passing signature verification.
func requestIdentifier(engine *authcore.Engine, r *http.Request) (identifier, userID string) {
	if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return "user:" + claims.Subject, claims.Subject
	}

	if raw, ok := bearerToken(r.Header.Get("Authorization")); ok {
		if claims, err := engine.ValidateAccess(r.Context(), raw); err == nil {
			return "user:" + claims.Subject, claims.Subject
		}
	}

	return "ip:" + clientIP(r), ""
}

// clientIP trusts the first X-Forwarded-For hop when present, falling
// back to the connection peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := fwd
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			first = fwd[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func pathSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}
