package usecase

import (
	"errors"

	"github.com/josemoyano04/user-manager/internal/core/port"
)

var (
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates the username or email already belongs to another account.
	ErrUserConflict = errors.New("username or email already in use")
	// ErrInvalidInput indicates a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPasswordPolicy indicates the password does not satisfy the configured policy.
	ErrPasswordPolicy = errors.New("password does not meet complexity requirements")
	// ErrRecoveryCodeIncorrect indicates no outstanding code matches the one supplied.
	ErrRecoveryCodeIncorrect = errors.New("recovery code is incorrect")
	// ErrRecoveryCodeExpired indicates the outstanding code has passed its expiry.
	ErrRecoveryCodeExpired = errors.New("recovery code has expired")
	// ErrCustomCodeNotAllowed indicates a caller supplied code was rejected.
	ErrCustomCodeNotAllowed = errors.New("custom recovery code not allowed")
	// ErrEmailDelivery indicates the recovery email could not be handed to the transport.
	ErrEmailDelivery = errors.New("recovery email could not be delivered")
	// ErrTokenOwnership indicates the bearer does not own the account being modified.
	ErrTokenOwnership = errors.New("token does not belong to this account")

	// ErrCodeExpired is the store level expiry signal.
	ErrCodeExpired = port.ErrCodeExpired
)
