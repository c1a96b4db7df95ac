package sqlrepo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/infra/database"
	"github.com/josemoyano04/user-manager/internal/repository"
)

const usersTable = "users"

var userColumns = []string{"full_name", "username", "email", "hashed_password"}

// UserDirectory implements port.UserDirectory over the storage contract.
type UserDirectory struct {
	storage database.Storage
	builder squirrel.StatementBuilderType
	mu      *sync.Mutex
}

// Option customises a UserDirectory.
type Option func(*UserDirectory)

// WithSerializedAccess makes every directory call take one process wide lock.
func WithSerializedAccess(enabled bool) Option {
	return func(d *UserDirectory) {
		if enabled {
			d.mu = &sync.Mutex{}
		} else {
			d.mu = nil
		}
	}
}

// NewUserDirectory wires a directory with serialized access enabled unless overridden.
func NewUserDirectory(storage database.Storage, opts ...Option) *UserDirectory {
	d := &UserDirectory{
		storage: storage,
		builder: squirrel.StatementBuilder.PlaceholderFormat(storage.Placeholder()),
		mu:      &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *UserDirectory) lock() func() {
	if d.mu == nil {
		return func() {}
	}
	d.mu.Lock()
	return d.mu.Unlock
}

func (d *UserDirectory) query(ctx context.Context, q squirrel.Sqlizer) ([]database.Row, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}

	defer d.lock()()

	conn, err := d.storage.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.Query(ctx, stmt, args...)
}

func (d *UserDirectory) exec(ctx context.Context, q squirrel.Sqlizer) (int64, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql: %w", err)
	}

	defer d.lock()()

	conn, err := d.storage.Connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	affected, err := conn.Exec(ctx, stmt, args...)
	if err != nil {
		if errors.Is(err, database.ErrUniqueViolation) {
			return 0, fmt.Errorf("%w: %w", repository.ErrConflict, err)
		}
		return 0, err
	}
	return affected, nil
}

// Exists reports whether a row with the username is present.
func (d *UserDirectory) Exists(ctx context.Context, username string) (bool, error) {
	rows, err := d.query(ctx, d.builder.
		Select("1").
		From(usersTable).
		Where(squirrel.Eq{"username": username}).
		Limit(1))
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return len(rows) > 0, nil
}

func (d *UserDirectory) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return d.findOne(ctx, squirrel.Eq{"username": username})
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return d.findOne(ctx, squirrel.Eq{"email": email})
}

func (d *UserDirectory) findOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	rows, err := d.query(ctx, d.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1))
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}

	user, err := scanUser(rows[0])
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IsUnique counts accounts sharing the candidate's username or email. A new account needs
// none; an updated one may only collide with itself.
func (d *UserDirectory) IsUnique(ctx context.Context, candidate domain.User, forUpdate bool) (bool, error) {
	rows, err := d.query(ctx, d.builder.
		Select("COUNT(*)").
		From(usersTable).
		Where(squirrel.Or{
			squirrel.Eq{"username": candidate.Username},
			squirrel.Eq{"email": candidate.Email},
		}))
	if err != nil {
		return false, fmt.Errorf("count matching users: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return false, fmt.Errorf("count matching users: empty result")
	}

	count, err := toInt64(rows[0][0])
	if err != nil {
		return false, fmt.Errorf("count matching users: %w", err)
	}

	if forUpdate {
		return count == 1, nil
	}
	return count == 0, nil
}

func (d *UserDirectory) Add(ctx context.Context, user domain.User) error {
	_, err := d.exec(ctx, d.builder.
		Insert(usersTable).
		Columns(userColumns...).
		Values(user.FullName, user.Username, user.Email, user.PasswordHash))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update replaces every column of the row currently keyed by username.
func (d *UserDirectory) Update(ctx context.Context, username string, user domain.User) error {
	affected, err := d.exec(ctx, d.builder.
		Update(usersTable).
		SetMap(map[string]any{
			"full_name":       user.FullName,
			"username":        user.Username,
			"email":           user.Email,
			"hashed_password": user.PasswordHash,
		}).
		Where(squirrel.Eq{"username": username}))
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (d *UserDirectory) Delete(ctx context.Context, username string) error {
	affected, err := d.exec(ctx, d.builder.
		Delete(usersTable).
		Where(squirrel.Eq{"username": username}))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row database.Row) (domain.User, error) {
	if len(row) != len(userColumns) {
		return domain.User{}, fmt.Errorf("scan user: expected %d columns, got %d", len(userColumns), len(row))
	}

	fields := make([]string, len(row))
	for i, v := range row {
		s, ok := v.(string)
		if !ok {
			return domain.User{}, fmt.Errorf("scan user: column %s has type %T", userColumns[i], v)
		}
		fields[i] = s
	}

	return domain.User{
		FullName:     fields[0],
		Username:     fields[1],
		Email:        fields[2],
		PasswordHash: fields[3],
	}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
