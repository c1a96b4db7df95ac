package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/security"
	"github.com/josemoyano04/user-manager/internal/repository"
)

// rehasher is implemented by hashers that can tell when a stored hash uses outdated parameters.
type rehasher interface {
	NeedsRehash(encoded string) bool
}

// AuthService authenticates users and guards token protected operations.
type AuthService struct {
	users  port.UserDirectory
	hasher port.PasswordHasher
	tokens *security.TokenManager
	logger *zap.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(users port.UserDirectory, hasher port.PasswordHasher, tokens *security.TokenManager, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, hasher: hasher, tokens: tokens, logger: logger}
}

// Login verifies the credentials and issues a session token for username.
func (s *AuthService) Login(ctx context.Context, username, password string) (domain.AccessToken, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.AccessToken{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	ctx, span := startSpan(ctx, "AuthService.Login")
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.AccessToken{}, ErrInvalidCredentials
		}
		spanErr = err
		return domain.AccessToken{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("stored password hash could not be verified", zap.String("username", user.Username), zap.Error(err))
		return domain.AccessToken{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.AccessToken{}, ErrInvalidCredentials
	}

	s.upgradeHash(ctx, *user, password)

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		spanErr = err
		return domain.AccessToken{}, fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// upgradeHash replaces legacy or weaker hashes after a successful login. Failures only log.
func (s *AuthService) upgradeHash(ctx context.Context, user domain.User, password string) {
	checker, ok := s.hasher.(rehasher)
	if !ok || !checker.NeedsRehash(user.PasswordHash) {
		return
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("rehash password failed", zap.String("username", user.Username), zap.Error(err))
		return
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user.Username, user); err != nil {
		s.logger.Warn("persist rehashed password failed", zap.String("username", user.Username), zap.Error(err))
		return
	}
	s.logger.Info("password hash upgraded", zap.String("username", user.Username))
}

// Authenticate is the lenient gate: it returns the subject of a well formed, unexpired token whose
// account still exists. Decoding failures yield false without error; storage failures are returned.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, bool, error) {
	subject, ok := s.tokens.SubjectOf(token)
	if !ok {
		return "", false, nil
	}

	ctx, span := startSpan(ctx, "AuthService.Authenticate", attribute.String("user.subject", subject))
	exists, err := s.users.Exists(ctx, subject)
	finishSpan(span, err)
	if err != nil {
		return "", false, fmt.Errorf("check subject: %w", err)
	}
	if !exists {
		return "", false, nil
	}
	return subject, true, nil
}

// IsValid reports whether token passes the gate.
func (s *AuthService) IsValid(ctx context.Context, token string) (bool, error) {
	_, ok, err := s.Authenticate(ctx, token)
	return ok, err
}

// CurrentUser resolves the strict token path used by /user/me. Token errors keep their
// security.ErrToken* identity so callers can tell format, expiry and signature failures apart.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (domain.UserProfile, error) {
	claims, err := s.tokens.DecodeStrict(token)
	if err != nil {
		return domain.UserProfile{}, err
	}

	ctx, span := startSpan(ctx, "AuthService.CurrentUser", attribute.String("user.subject", claims.Subject))
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.UserProfile{}, ErrUserNotFound
		}
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Profile(), nil
}
