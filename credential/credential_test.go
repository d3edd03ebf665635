package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tenant-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestCredential_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("explicit expiry in future", func(t *testing.T) {
		cred := Credential{Token: "opaque", ExpiresAt: now.Add(time.Hour)}
		if cred.Expired(now) {
			t.Error("expected credential to be valid")
		}
	})

	t.Run("explicit expiry in past", func(t *testing.T) {
		cred := Credential{Token: "opaque", ExpiresAt: now.Add(-time.Minute)}
		if !cred.Expired(now) {
			t.Error("expected credential to be expired")
		}
	})

	t.Run("expiry exactly now", func(t *testing.T) {
		cred := Credential{Token: "opaque", ExpiresAt: now}
		if !cred.Expired(now) {
			t.Error("a credential at its expiry instant must not be used")
		}
	})

	t.Run("zero expiry falls back to jwt exp claim", func(t *testing.T) {
		cred := Credential{Token: signedToken(t, now.Add(time.Hour))}
		if cred.Expired(now) {
			t.Error("expected jwt with future exp to be valid")
		}

		cred = Credential{Token: signedToken(t, now.Add(-time.Hour))}
		if !cred.Expired(now) {
			t.Error("expected jwt with past exp to be expired")
		}
	})

	t.Run("zero expiry with opaque token assumed valid", func(t *testing.T) {
		cred := Credential{Token: "not-a-jwt"}
		if cred.Expired(now) {
			t.Error("opaque token without expiry must be assumed valid")
		}
	})
}

func TestStatic_Valid(t *testing.T) {
	provider := NewStatic(map[string]Credential{
		"tenant-1": {Token: "tok-1"},
	})

	cred, err := provider.Valid(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Token != "tok-1" {
		t.Errorf("expected tok-1, got %q", cred.Token)
	}

	if _, err := provider.Valid(context.Background(), "unknown"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
