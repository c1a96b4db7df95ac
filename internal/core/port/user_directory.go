package port

import (
	"context"

	"github.com/josemoyano04/user-manager/internal/core/domain"
)

// UserDirectory exposes CRUD and uniqueness checks over the user table.
type UserDirectory interface {
	Exists(ctx context.Context, username string) (bool, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// IsUnique reports whether candidate collides with no account (forUpdate=false)
	// or with exactly one account, the one being updated (forUpdate=true).
	IsUnique(ctx context.Context, candidate domain.User, forUpdate bool) (bool, error)
	Add(ctx context.Context, user domain.User) error
	Update(ctx context.Context, username string, user domain.User) error
	Delete(ctx context.Context, username string) error
}
