package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalid is the only failure Decode returns. Bad signature, malformed
// input, unexpected algorithm, missing type, and expiry are deliberately
// indistinguishable so a caller can never probe which check failed.
var ErrInvalid = errors.New("invalid token")

// Config holds the signing parameters. Secret is the process-wide HMAC
// key; there is no rotation scheme.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims are the decoded token contents. Refresh tokens carry a unique ID
// in the registered jti claim, enabling selective revocation; access
// tokens never do and are validated fully stateless.
type Claims struct {
	Type  string   `json:"type"`
	Roles []string `json:"roles,omitempty"`
	Email string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ExtraClaims are optional custom claims embedded in access tokens.
type ExtraClaims struct {
	Roles []string
	Email string
}

// Codec issues and verifies HS256-signed session tokens. It performs no
// store access; revocation checks are the caller's concern.
type Codec struct {
	config Config
}

// NewCodec validates the configuration and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &Codec{config: cfg}, nil
}

// IssueAccess creates an access token for subject. ttl <= 0 uses the
// configured access TTL.
func (c *Codec) IssueAccess(subject string, extra ExtraClaims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.config.AccessTTL
	}

	now := time.Now()
	claims := Claims{
		Type:  TypeAccess,
		Roles: extra.Roles,
		Email: extra.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    c.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
}

// IssueRefresh creates a refresh token for subject and returns it with its
// expiry. The embedded jti is a fresh UUID.
func (c *Codec) IssueRefresh(subject string) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(c.config.RefreshTTL)

	claims := Claims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			Issuer:    c.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiry, nil
}

// Decode verifies the signature, expiry, and issuer and returns the
// claims. Every failure is [ErrInvalid].
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Type != TypeAccess && claims.Type != TypeRefresh {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}
