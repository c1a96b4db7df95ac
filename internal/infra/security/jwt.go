package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/josemoyano04/user-manager/internal/core/domain"
)

var (
	// ErrTokenFormat indicates a token that verifies but carries no subject.
	ErrTokenFormat = errors.New("token format invalid")
	// ErrTokenExpired indicates a correctly signed token whose exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, unexpected algorithms and malformed input.
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessTokenClaims carries the subject username and standard timing claims.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
}

// TokenManager mints and verifies HMAC signed session tokens.
type TokenManager struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager accepts HS256, HS384 or HS512.
func NewTokenManager(secret, algorithm string, ttl time.Duration) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt: secret key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("jwt: token lifetime must be positive")
	}

	method := jwt.GetSigningMethod(strings.ToUpper(strings.TrimSpace(algorithm)))
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("jwt: unsupported signing algorithm %q", algorithm)
	}

	return &TokenManager{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (m *TokenManager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// Issue signs {sub, exp} for subject.
func (m *TokenManager) Issue(subject string) (domain.AccessToken, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.AccessToken{}, fmt.Errorf("jwt: subject is required")
	}

	now := m.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return domain.AccessToken{
		Value:     signed,
		TokenType: domain.TokenTypeBearer,
		Subject:   subject,
		ExpiresAt: expiresAt,
	}, nil
}

// SubjectOf returns the sub claim of a valid token. Any failure yields false.
func (m *TokenManager) SubjectOf(token string) (string, bool) {
	claims, err := m.DecodeStrict(token)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// DecodeStrict verifies token and reports why it was rejected with ErrTokenExpired,
// ErrTokenInvalid or ErrTokenFormat.
func (m *TokenManager) DecodeStrict(token string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenFormat
	}

	return claims, nil
}
