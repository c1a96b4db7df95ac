package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestTokenManager(t *testing.T) (*TokenManager, *time.Time) {
	t.Helper()

	mgr, err := NewTokenManager("test-secret", "HS256", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mgr.WithClock(func() time.Time { return now })
	return mgr, &now
}

func TestIssueAndSubjectOfRoundTrip(t *testing.T) {
	mgr, now := newTestTokenManager(t)

	token, err := mgr.Issue("alice")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if token.TokenType != "Bearer" {
		t.Fatalf("expected Bearer token type, got %s", token.TokenType)
	}
	if !token.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", token.ExpiresAt)
	}

	subject, ok := mgr.SubjectOf(token.Value)
	if !ok || subject != "alice" {
		t.Fatalf("expected alice, got %q (ok=%v)", subject, ok)
	}
}

func TestDecodeStrictExpired(t *testing.T) {
	mgr, now := newTestTokenManager(t)

	token, _ := mgr.Issue("alice")
	*now = now.Add(31 * time.Minute)

	if _, err := mgr.DecodeStrict(token.Value); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, ok := mgr.SubjectOf(token.Value); ok {
		t.Fatal("expected SubjectOf to fail for an expired token")
	}
}

func TestDecodeStrictWrongSecret(t *testing.T) {
	mgr, _ := newTestTokenManager(t)

	other, _ := NewTokenManager("another-secret", "HS256", time.Minute)
	token, _ := other.Issue("alice")

	if _, err := mgr.DecodeStrict(token.Value); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestDecodeStrictWrongAlgorithm(t *testing.T) {
	mgr, _ := newTestTokenManager(t)

	other, _ := NewTokenManager("test-secret", "HS512", time.Hour)
	token, _ := other.Issue("alice")

	if _, err := mgr.DecodeStrict(token.Value); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for pinned algorithm, got %v", err)
	}
}

func TestDecodeStrictMalformed(t *testing.T) {
	mgr, _ := newTestTokenManager(t)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		if _, err := mgr.DecodeStrict(raw); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", raw, err)
		}
	}
}

func TestDecodeStrictMissingSubject(t *testing.T) {
	mgr, now := newTestTokenManager(t)

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := mgr.DecodeStrict(signed); !errors.Is(err, ErrTokenFormat) {
		t.Fatalf("expected ErrTokenFormat, got %v", err)
	}
}

func TestNewTokenManagerRejectsNonHMAC(t *testing.T) {
	if _, err := NewTokenManager("secret", "RS256", time.Minute); err == nil {
		t.Fatal("expected RS256 to be rejected")
	}
	if _, err := NewTokenManager("secret", "none", time.Minute); err == nil {
		t.Fatal("expected none to be rejected")
	}
	if _, err := NewTokenManager("", "HS256", time.Minute); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}
