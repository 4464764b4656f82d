package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	internalaudit "github.com/vaultside/authcore/internal/audit"
	internalmetrics "github.com/vaultside/authcore/internal/metrics"
	"github.com/vaultside/authcore/internal/stores"
)

// Signup registers a new identity. The account starts active but
// unverified; a verify-email ephemeral token is issued and a verification
// mail is requested. Returns [ErrConflict] when the email already has an
// identity and [ErrValidation] when the password policy fails or the
// confirmation mismatches.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (SignupResult, error) {
	if e == nil || e.directory == nil {
		return SignupResult{}, ErrEngineNotReady
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return SignupResult{}, err
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		return SignupResult{}, err
	}

	// Pre-check keeps the common duplicate case off the hashing path; the
	// directory's Create still enforces uniqueness for races.
	if _, err := e.directory.GetByEmail(ctx, email); err == nil {
		e.metrics.Inc(internalmetrics.MetricSignupConflict)
		return SignupResult{}, ErrConflict
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return SignupResult{}, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return SignupResult{}, err
	}

	identity, err := e.directory.Create(ctx, CreateIdentityInput{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.metrics.Inc(internalmetrics.MetricSignupConflict)
			return SignupResult{}, ErrConflict
		}
		return SignupResult{}, err
	}

	raw, err := e.ephemeral.Issue(ctx, identity.ID, stores.PurposeVerifyEmail, e.config.Ephemeral.VerificationTTL)
	if err != nil {
		return SignupResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emit(ctx, internalaudit.TypeEmailVerificationSent, identity.ID, req.Meta, nil)
	e.sendVerificationMail(ctx, identity.Email, raw)
	e.metrics.Inc(internalmetrics.MetricSignupSuccess)

	return SignupResult{Identity: identity, VerificationToken: raw}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 {
		return "", fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return email, nil
}

// validatePassword enforces the password policy: at least 8 characters
// with one uppercase letter, one lowercase letter, and one digit. All
// violations are reported in a single message.
func validatePassword(pw, confirm string) error {
	if pw != confirm {
		return fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	var problems []string
	if len(pw) < 8 {
		problems = append(problems, "password must be at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		problems = append(problems, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		problems = append(problems, "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		problems = append(problems, "password must contain at least one number")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
