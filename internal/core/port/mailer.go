package port

import (
	"context"

	"github.com/josemoyano04/user-manager/internal/core/domain"
)

// RecoveryMailer delivers recovery codes to users.
type RecoveryMailer interface {
	SendRecoveryCode(ctx context.Context, email domain.RecoveryEmail) error
}
