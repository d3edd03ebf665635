package credential

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnavailable signals the provider could not produce a usable credential,
// typically because a refresh failed upstream.
var ErrUnavailable = errors.New("credential: provider unavailable")

// Credential is an opaque bearer token plus its expiry instant.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Provider supplies a valid credential for a tenant, refreshing transparently.
type Provider interface {
	Valid(ctx context.Context, tenantID string) (Credential, error)
}

// Expired reports whether the credential must not be used at the given instant.
// When the provider supplied no explicit expiry, the bearer's own exp claim is
// consulted; a token without one is assumed valid.
func (c Credential) Expired(now time.Time) bool {
	exp := c.ExpiresAt
	if exp.IsZero() {
		exp = tokenExpiry(c.Token)
	}
	if exp.IsZero() {
		return false
	}
	return !now.Before(exp)
}

// tokenExpiry extracts the exp claim from a JWT bearer without verifying the
// signature. Verification is the remote API's job; this is only a local guard
// against sending calls that are guaranteed to fail with 401.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Static is a fixed-token Provider for tests and dry runs.
type Static struct {
	byTenant map[string]Credential
}

// NewStatic builds a provider that returns the same credential per tenant.
func NewStatic(byTenant map[string]Credential) *Static {
	return &Static{byTenant: byTenant}
}

func (s *Static) Valid(_ context.Context, tenantID string) (Credential, error) {
	cred, ok := s.byTenant[tenantID]
	if !ok {
		return Credential{}, ErrUnavailable
	}
	return cred, nil
}
