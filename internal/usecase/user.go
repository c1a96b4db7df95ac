package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/logger"
	"github.com/josemoyano04/user-manager/internal/repository"
)

// UserInput is the full account payload accepted by registration and update.
type UserInput struct {
	FullName string
	Username string
	Email    string
	Password string
}

func (in UserInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(in.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return nil
}

// emailValidator runs the same "email" rule as gin's request binding.
var emailValidator = validator.New(validator.WithRequiredStructEnabled())

func validateEmail(email string) error {
	if err := emailValidator.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalidInput)
	}
	return nil
}

// UserService handles the account lifecycle.
type UserService struct {
	users  port.UserDirectory
	hasher port.PasswordHasher
	policy port.PasswordPolicyValidator
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService constructs UserService. events may be nil.
func NewUserService(users port.UserDirectory, hasher port.PasswordHasher, policy port.PasswordPolicyValidator, events port.EventPublisher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:  users,
		hasher: hasher,
		policy: policy,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows tests to override the clock used for event timestamps.
func (s *UserService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register creates a new account after the policy and uniqueness checks.
func (s *UserService) Register(ctx context.Context, input UserInput) (domain.UserProfile, error) {
	user, err := s.prepare(input)
	if err != nil {
		return domain.UserProfile{}, err
	}

	ctx, span := startSpan(ctx, "UserService.Register", attribute.String("user.username", user.Username))
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	unique, err := s.users.IsUnique(ctx, user, false)
	if err != nil {
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("check uniqueness: %w", err)
	}
	if !unique {
		return domain.UserProfile{}, ErrUserConflict
	}

	if user.PasswordHash, err = s.hasher.Hash(input.Password); err != nil {
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.Add(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.UserProfile{}, ErrUserConflict
		}
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("add user: %w", err)
	}

	logger.WithContext(ctx).Info("user registered",
		zap.String("username", user.Username),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			Username:     user.Username,
			Email:        user.Email,
			RegisteredAt: s.now().UTC(),
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("publish user registered event failed", zap.String("username", user.Username), zap.Error(err))
		}
	}

	return user.Profile(), nil
}

// Update replaces every field of the account named by subject, re-hashing the password.
func (s *UserService) Update(ctx context.Context, subject string, input UserInput) (domain.UserProfile, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	updated, err := s.prepare(input)
	if err != nil {
		return domain.UserProfile{}, err
	}

	ctx, span := startSpan(ctx, "UserService.Update", attribute.String("user.subject", subject))
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	current, err := s.users.FindByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.UserProfile{}, ErrUserNotFound
		}
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("lookup user: %w", err)
	}

	// A candidate that keeps its username or email matches its own row exactly once.
	keepsIdentity := updated.Username == current.Username || updated.Email == current.Email
	unique, err := s.users.IsUnique(ctx, updated, keepsIdentity)
	if err != nil {
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("check uniqueness: %w", err)
	}
	if !unique {
		return domain.UserProfile{}, ErrUserConflict
	}

	if updated.PasswordHash, err = s.hasher.Hash(input.Password); err != nil {
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.Update(ctx, subject, updated); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return domain.UserProfile{}, ErrUserNotFound
		case errors.Is(err, repository.ErrConflict):
			return domain.UserProfile{}, ErrUserConflict
		}
		spanErr = err
		return domain.UserProfile{}, fmt.Errorf("update user: %w", err)
	}

	if s.events != nil {
		event := domain.UserUpdatedEvent{
			EventID:          uuid.NewString(),
			PreviousUsername: current.Username,
			Username:         updated.Username,
			Email:            updated.Email,
			UpdatedAt:        s.now().UTC(),
		}
		if err := s.events.PublishUserUpdated(ctx, event); err != nil {
			s.logger.Warn("publish user updated event failed", zap.String("username", updated.Username), zap.Error(err))
		}
	}

	return updated.Profile(), nil
}

// Delete removes the account named by subject. Outstanding tokens for it stop passing the gate.
func (s *UserService) Delete(ctx context.Context, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}

	ctx, span := startSpan(ctx, "UserService.Delete", attribute.String("user.subject", subject))
	var spanErr error
	defer func() { finishSpan(span, spanErr) }()

	if err := s.users.Delete(ctx, subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		spanErr = err
		return fmt.Errorf("delete user: %w", err)
	}

	logger.WithContext(ctx).Info("user deleted", zap.String("username", subject))

	if s.events != nil {
		event := domain.UserDeletedEvent{
			EventID:   uuid.NewString(),
			Username:  subject,
			DeletedAt: s.now().UTC(),
		}
		if err := s.events.PublishUserDeleted(ctx, event); err != nil {
			s.logger.Warn("publish user deleted event failed", zap.String("username", subject), zap.Error(err))
		}
	}
	return nil
}

func (s *UserService) prepare(input UserInput) (domain.User, error) {
	if err := input.validate(); err != nil {
		return domain.User{}, err
	}
	if s.policy != nil {
		if err := s.policy.Validate(input.Password); err != nil {
			return domain.User{}, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
	}
	return domain.User{
		FullName: input.FullName,
		Username: input.Username,
		Email:    input.Email,
	}.Normalize(), nil
}
