package port

import (
	"context"
	"errors"

	"github.com/josemoyano04/user-manager/internal/core/domain"
)

// ErrCodeExpired is returned when the stored recovery code for an email has passed its expiry.
var ErrCodeExpired = errors.New("recovery code expired")

// RecoveryCodeStore keeps at most one outstanding recovery code per email address.
type RecoveryCodeStore interface {
	Generate(ctx context.Context, email string) (domain.RecoveryCode, error)
	Save(ctx context.Context, email, code string) (domain.RecoveryCode, error)
	// Validate consumes the code on a match. A missing entry or a mismatch yields false
	// without error; an expired entry yields ErrCodeExpired.
	Validate(ctx context.Context, email, code string) (bool, error)
}
