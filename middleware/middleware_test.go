package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/vaultside/authcore"
)

func newTestEngine(t *testing.T, planLimits map[authcore.Plan]int) (*miniredis.Miniredis, *authcore.Engine, *memDirectory) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = authcore.PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	if planLimits != nil {
		cfg.RateLimit.PlanLimits = planLimits
	}
	cfg.RateLimit.BurstLimit = 2
	cfg.RateLimit.BurstWindow = 10 * time.Second

	dir := newMemDirectory()

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return mr, engine, dir
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func signupLogin(t *testing.T, engine *authcore.Engine) authcore.TokenPair {
	t.Helper()

	ctx := context.Background()
	res, err := engine.Signup(ctx, authcore.SignupRequest{
		Email:           "alice@example.com",
		Password:        "Correct-horse1",
		ConfirmPassword: "Correct-horse1",
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if _, err := engine.VerifyEmail(ctx, res.VerificationToken, authcore.RequestMeta{}); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	pair, err := engine.Login(ctx, authcore.LoginRequest{
		Email:    "alice@example.com",
		Password: "Correct-horse1",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return pair
}

// ---------------------------------------------------------------------------
// Guard
// ---------------------------------------------------------------------------

func TestGuardAcceptsValidAccessToken(t *testing.T) {
	_, engine, _ := newTestEngine(t, nil)
	pair := signupLogin(t, engine)

	var gotSubject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		gotSubject = claims.Subject
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()

	Guard(engine)(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotSubject == "" {
		t.Fatal("subject not propagated")
	}
}

func TestGuardRejectsUniformly(t *testing.T) {
	_, engine, _ := newTestEngine(t, nil)
	pair := signupLogin(t, engine)

	headers := map[string]string{
		"no header":     "",
		"not bearer":    "Basic abc",
		"empty bearer":  "Bearer ",
		"garbage":       "Bearer not-a-token",
		"refresh token": "Bearer " + pair.RefreshToken,
	}

	for name, header := range headers {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()

		Guard(engine)(okHandler()).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// RateLimit
// ---------------------------------------------------------------------------

func TestRateLimitSetsHeaders(t *testing.T) {
	_, engine, _ := newTestEngine(t, map[authcore.Plan]int{authcore.PlanFree: 5})

	handler := RateLimit(engine, RateLimitOptions{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.RemoteAddr = "203.0.113.10:4242"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("limit header = %q, want 5", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("remaining header = %q, want 4", got)
	}
	if got := rec.Header().Get("X-RateLimit-Plan"); got != "free" {
		t.Fatalf("plan header = %q, want free", got)
	}
	reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		t.Fatalf("reset header not epoch seconds: %v", err)
	}
	if until := time.Until(time.Unix(reset, 0)); until <= 0 || until > 2*time.Minute {
		t.Fatalf("reset %v away, want within the window", until)
	}
}

func TestRateLimitRejectsWith429(t *testing.T) {
	_, engine, _ := newTestEngine(t, map[authcore.Plan]int{authcore.PlanFree: 2})

	handler := RateLimit(engine, RateLimitOptions{UpgradeURL: "https://example.com/pricing"})(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.RemoteAddr = "203.0.113.10:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	send()
	send()
	rec := send()

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type = %q", got)
	}

	var body struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		RetryAfter int64  `json:"retry_after"`
		Limit      int    `json:"limit"`
		UpgradeURL string `json:"upgrade_url"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Error != "rate_limit_exceeded" {
		t.Fatalf("error = %q", body.Error)
	}
	if body.Limit != 2 {
		t.Fatalf("limit = %d, want 2", body.Limit)
	}
	if body.RetryAfter < 1 {
		t.Fatalf("retry_after = %d, want >= 1", body.RetryAfter)
	}
	if body.UpgradeURL != "https://example.com/pricing" {
		t.Fatalf("upgrade_url = %q", body.UpgradeURL)
	}
}

func TestRateLimitOmitsUpgradeURLForEnterprise(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = authcore.PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.RateLimit.PlanLimits = map[authcore.Plan]int{
		authcore.PlanFree:       1,
		authcore.PlanEnterprise: 1,
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(newMemDirectory()).
		WithPlanResolver(planResolverFunc(func(context.Context, string) (authcore.Plan, error) {
			return authcore.PlanEnterprise, nil
		})).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	pair := signupLogin(t, engine)

	handler := RateLimit(engine, RateLimitOptions{UpgradeURL: "https://example.com/pricing"})(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	send()
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if _, ok := body["upgrade_url"]; ok {
		t.Fatal("upgrade_url present for an enterprise plan")
	}
}

func TestRateLimitKeysAuthenticatedUsersSeparately(t *testing.T) {
	_, engine, _ := newTestEngine(t, map[authcore.Plan]int{authcore.PlanFree: 1})
	pair := signupLogin(t, engine)

	handler := RateLimit(engine, RateLimitOptions{})(okHandler())

	// Anonymous request uses up the IP bucket.
	anon := httptest.NewRequest(http.MethodGet, "/api", nil)
	anon.RemoteAddr = "203.0.113.10:4242"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anon)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous status = %d, want 200", rec.Code)
	}

	// The authenticated user from the same address has their own bucket.
	authed := httptest.NewRequest(http.MethodGet, "/api", nil)
	authed.RemoteAddr = "203.0.113.10:4242"
	authed.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestRateLimitSkipsExcludedPathsAndOptions(t *testing.T) {
	_, engine, _ := newTestEngine(t, map[authcore.Plan]int{authcore.PlanFree: 1})

	handler := RateLimit(engine, RateLimitOptions{ExcludedPaths: []string{"/health"}})(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.10:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("excluded path limited on request %d", i)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("excluded path carries rate headers")
		}
	}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodOptions, "/api", nil)
		req.RemoteAddr = "203.0.113.10:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("OPTIONS limited on request %d", i)
		}
	}
}

func TestRateLimitBurstPaths(t *testing.T) {
	_, engine, _ := newTestEngine(t, map[authcore.Plan]int{authcore.PlanFree: 100})

	// Burst ceiling is 2 per 10s from newTestEngine.
	handler := RateLimit(engine, RateLimitOptions{BurstPaths: []string{"/login"}})(okHandler())

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "203.0.113.10:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("/login") != http.StatusOK || send("/login") != http.StatusOK {
		t.Fatal("burst path denied under the ceiling")
	}
	if send("/login") != http.StatusTooManyRequests {
		t.Fatal("burst path not denied over the ceiling")
	}

	// Other paths ride only the plan limiter.
	if send("/api") != http.StatusOK {
		t.Fatal("non-burst path caught by the burst ceiling")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.RemoteAddr = "10.0.0.1:4242"
	req.Header.Set("X-Forwarded-For", "203.0.113.10, 198.51.100.1")

	if got := clientIP(req); got != "203.0.113.10" {
		t.Fatalf("clientIP = %q, want first forwarded hop", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("clientIP = %q, want peer host", got)
	}
}

// ---------------------------------------------------------------------------
// In-memory directory
// ---------------------------------------------------------------------------

type memDirectory struct {
	mu      sync.RWMutex
	byID    map[string]authcore.Identity
	byEmail map[string]string
	nextID  int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		byID:    make(map[string]authcore.Identity),
		byEmail: make(map[string]string),
	}
}

func (d *memDirectory) GetByEmail(_ context.Context, email string) (authcore.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return authcore.Identity{}, authcore.ErrIdentityNotFound
	}
	return d.byID[id], nil
}

func (d *memDirectory) GetByID(_ context.Context, id string) (authcore.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.byID[id]
	if !ok {
		return authcore.Identity{}, authcore.ErrIdentityNotFound
	}
	return identity, nil
}

func (d *memDirectory) Create(_ context.Context, input authcore.CreateIdentityInput) (authcore.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byEmail[input.Email]; ok {
		return authcore.Identity{}, authcore.ErrConflict
	}

	d.nextID++
	identity := authcore.Identity{
		ID:           fmt.Sprintf("u%d", d.nextID),
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Active:       true,
	}
	d.byID[identity.ID] = identity
	d.byEmail[identity.Email] = identity.ID
	return identity, nil
}

func (d *memDirectory) SetVerified(_ context.Context, id string, at time.Time) error {
	return d.update(id, func(identity *authcore.Identity) {
		identity.EmailVerified = true
		identity.VerifiedAt = at
	})
}

func (d *memDirectory) SetPasswordHash(_ context.Context, id, hash string) error {
	return d.update(id, func(identity *authcore.Identity) {
		identity.PasswordHash = hash
	})
}

func (d *memDirectory) SetLastLogin(_ context.Context, id string, at time.Time) error {
	return d.update(id, func(identity *authcore.Identity) {
		identity.LastLoginAt = at
	})
}

func (d *memDirectory) SetActive(_ context.Context, id string, active bool) error {
	return d.update(id, func(identity *authcore.Identity) {
		identity.Active = active
	})
}

func (d *memDirectory) update(id string, fn func(*authcore.Identity)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.byID[id]
	if !ok {
		return authcore.ErrIdentityNotFound
	}
	fn(&identity)
	d.byID[id] = identity
	return nil
}

type planResolverFunc func(ctx context.Context, userID string) (authcore.Plan, error)

func (f planResolverFunc) PlanFor(ctx context.Context, userID string) (authcore.Plan, error) {
	return f(ctx, userID)
}
