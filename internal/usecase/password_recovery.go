package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/logger"
	"github.com/josemoyano04/user-manager/internal/infra/security"
	"github.com/josemoyano04/user-manager/internal/infra/telemetry"
	"github.com/josemoyano04/user-manager/internal/repository"
)

const passwordRecoveryReason = "password_recovery"

// RecoveryOptions toggles the behaviour that differs between environments.
type RecoveryOptions struct {
	// AllowCustomCode lets callers pick the code that gets stored and mailed.
	AllowCustomCode bool
	// ExposeCode echoes the issued code back to the caller. Development only.
	ExposeCode bool
}

// RecoveryRequestInput carries a request for a new recovery code.
type RecoveryRequestInput struct {
	Email      string
	Template   string
	CustomCode string
	IPAddress  string
}

// RecoveryRequestResult describes the code that was issued.
type RecoveryRequestResult struct {
	ExpiresAt time.Time
	// Code is only populated when RecoveryOptions.ExposeCode is set.
	Code string
}

// PasswordRecoveryService issues, verifies and redeems emailed recovery codes.
type PasswordRecoveryService struct {
	users   port.UserDirectory
	codes   port.RecoveryCodeStore
	mailer  port.RecoveryMailer
	hasher  port.PasswordHasher
	policy  port.PasswordPolicyValidator
	tokens  *security.TokenManager
	events  port.EventPublisher
	metrics *telemetry.RecoveryMetrics
	opts    RecoveryOptions
	logger  *zap.Logger
	now     func() time.Time
}

// NewPasswordRecoveryService constructs a PasswordRecoveryService. events and metrics may be nil.
func NewPasswordRecoveryService(
	users port.UserDirectory,
	codes port.RecoveryCodeStore,
	mailer port.RecoveryMailer,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	tokens *security.TokenManager,
	events port.EventPublisher,
	metrics *telemetry.RecoveryMetrics,
	opts RecoveryOptions,
	logger *zap.Logger,
) *PasswordRecoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordRecoveryService{
		users:   users,
		codes:   codes,
		mailer:  mailer,
		hasher:  hasher,
		policy:  policy,
		tokens:  tokens,
		events:  events,
		metrics: metrics,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock allows tests to override the clock used for event timestamps.
func (s *PasswordRecoveryService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RequestCode stores a fresh code for the account registered under input.Email and mails it.
// The previous outstanding code for that email, if any, is replaced.
func (s *PasswordRecoveryService) RequestCode(ctx context.Context, input RecoveryRequestInput) (RecoveryRequestResult, error) {
	email := strings.TrimSpace(input.Email)
	if err := validateEmail(email); err != nil {
		return RecoveryRequestResult{}, err
	}

	custom := strings.TrimSpace(input.CustomCode)
	if custom != "" {
		if !s.opts.AllowCustomCode {
			return RecoveryRequestResult{}, ErrCustomCodeNotAllowed
		}
		if !security.IsNumericCode(custom, domain.RecoveryCodeLength) {
			return RecoveryRequestResult{}, fmt.Errorf("%w: custom_code must be exactly %d digits", ErrInvalidInput, domain.RecoveryCodeLength)
		}
	}

	ctx, span := startSpan(ctx, "PasswordRecoveryService.RequestCode", attribute.Bool("recovery.custom_code", custom != ""))
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RecoveryRequestResult{}, ErrUserNotFound
		}
		spanErr = err
		return RecoveryRequestResult{}, fmt.Errorf("lookup user: %w", err)
	}

	var code domain.RecoveryCode
	if custom != "" {
		code, err = s.codes.Save(ctx, email, custom)
	} else {
		code, err = s.codes.Generate(ctx, email)
	}
	if err != nil {
		spanErr = err
		return RecoveryRequestResult{}, fmt.Errorf("store recovery code: %w", err)
	}
	s.metrics.CodeIssued()

	message := domain.RecoveryEmail{
		To:        email,
		Username:  user.Username,
		Code:      code.Code,
		Template:  input.Template,
		ExpiresAt: code.ExpiresAt,
	}
	if err := s.mailer.SendRecoveryCode(ctx, message); err != nil {
		spanErr = err
		return RecoveryRequestResult{}, fmt.Errorf("%w: %w", ErrEmailDelivery, err)
	}

	logger.WithContext(ctx).Info("recovery code issued",
		zap.String("email", logger.MaskEmail(email)),
		zap.Time("expires_at", code.ExpiresAt),
		zap.Bool("custom_code", custom != ""),
	)

	if s.events != nil {
		event := domain.PasswordRecoveryRequestedEvent{
			EventID:           uuid.NewString(),
			Username:          user.Username,
			MaskedDestination: logger.MaskEmail(email),
			RequestedAt:       s.now().UTC(),
			ExpiresAt:         code.ExpiresAt,
			CustomCode:        custom != "",
		}
		if ip := strings.TrimSpace(input.IPAddress); ip != "" {
			masked := logger.MaskIP(ip)
			event.IPAddress = &masked
		}
		if err := s.events.PublishPasswordRecoveryRequested(ctx, event); err != nil {
			s.logger.Warn("publish recovery requested event failed", zap.String("username", user.Username), zap.Error(err))
		}
	}

	result := RecoveryRequestResult{ExpiresAt: code.ExpiresAt}
	if s.opts.ExposeCode {
		result.Code = code.Code
	}
	return result, nil
}

// VerifyCode consumes a matching code and returns a session token for the account owning email.
func (s *PasswordRecoveryService) VerifyCode(ctx context.Context, email, code string) (domain.AccessToken, error) {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if err := validateEmail(email); err != nil {
		return domain.AccessToken{}, err
	}
	if code == "" {
		return domain.AccessToken{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}

	ctx, span := startSpan(ctx, "PasswordRecoveryService.VerifyCode")
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	ok, err := s.codes.Validate(ctx, email, code)
	switch {
	case errors.Is(err, port.ErrCodeExpired):
		s.metrics.Validated(telemetry.OutcomeExpired)
		return domain.AccessToken{}, ErrRecoveryCodeExpired
	case err != nil:
		s.metrics.Validated(telemetry.OutcomeError)
		spanErr = err
		return domain.AccessToken{}, fmt.Errorf("validate recovery code: %w", err)
	case !ok:
		s.metrics.Validated(telemetry.OutcomeIncorrect)
		return domain.AccessToken{}, ErrRecoveryCodeIncorrect
	}
	s.metrics.Validated(telemetry.OutcomeAccepted)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.AccessToken{}, ErrUserNotFound
		}
		spanErr = err
		return domain.AccessToken{}, fmt.Errorf("lookup user: %w", err)
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		spanErr = err
		return domain.AccessToken{}, fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// ResetPassword replaces the password of the account registered under email. subject is the
// authenticated bearer and must own that account.
func (s *PasswordRecoveryService) ResetPassword(ctx context.Context, subject, email, newPassword string) error {
	subject = strings.TrimSpace(subject)
	email = strings.TrimSpace(email)
	if subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new_password is required", ErrInvalidInput)
	}
	if s.policy != nil {
		if err := s.policy.Validate(newPassword); err != nil {
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
	}

	ctx, span := startSpan(ctx, "PasswordRecoveryService.ResetPassword", attribute.String("user.subject", subject))
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		spanErr = err
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.Username != subject {
		logger.WithContext(ctx).Warn("password reset rejected: token subject does not own email",
			zap.String("subject", subject),
			zap.String("email", logger.MaskEmail(email)),
		)
		return ErrTokenOwnership
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		spanErr = err
		return fmt.Errorf("hash password: %w", err)
	}
	updated := *user
	updated.PasswordHash = hash

	if err := s.users.Update(ctx, user.Username, updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		spanErr = err
		return fmt.Errorf("update password: %w", err)
	}

	logger.WithContext(ctx).Info("password reset", zap.String("username", user.Username))

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			Username:  user.Username,
			ChangedAt: s.now().UTC(),
			ChangedBy: subject,
			Reason:    passwordRecoveryReason,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.String("username", user.Username), zap.Error(err))
		}
	}
	return nil
}
