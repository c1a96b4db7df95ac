package sqlrepo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/infra/database"
	"github.com/josemoyano04/user-manager/internal/repository"
)

func newDirectory(t *testing.T, opts ...Option) *UserDirectory {
	t.Helper()

	ctx := context.Background()
	storage, err := database.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	require.NoError(t, database.MigrateSQLite(ctx, storage, zap.NewNop()))

	return NewUserDirectory(storage, opts...)
}

func alice() domain.User {
	return domain.User{
		FullName:     "Alice Liddell",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash-1",
	}
}

func TestUserDirectory_AddAndFind(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Add(ctx, alice()))

	exists, err := dir.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	byName, err := dir.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice(), *byName)

	byEmail, err := dir.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice(), *byEmail)
}

func TestUserDirectory_MissingUser(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	exists, err := dir.Exists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = dir.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = dir.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, dir.Update(ctx, "nobody", alice()), repository.ErrNotFound)
	assert.ErrorIs(t, dir.Delete(ctx, "nobody"), repository.ErrNotFound)
}

func TestUserDirectory_IsUnique(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	fresh := domain.User{Username: "alice", Email: "alice@example.com"}
	unique, err := dir.IsUnique(ctx, fresh, false)
	require.NoError(t, err)
	assert.True(t, unique, "empty table accepts a new account")

	require.NoError(t, dir.Add(ctx, alice()))

	unique, err = dir.IsUnique(ctx, domain.User{Username: "alice", Email: "new@example.com"}, false)
	require.NoError(t, err)
	assert.False(t, unique, "username taken")

	unique, err = dir.IsUnique(ctx, domain.User{Username: "alice2", Email: "alice@example.com"}, false)
	require.NoError(t, err)
	assert.False(t, unique, "email taken")

	unique, err = dir.IsUnique(ctx, alice(), true)
	require.NoError(t, err)
	assert.True(t, unique, "an update may collide with itself")

	bob := domain.User{FullName: "Bob", Username: "bob", Email: "bob@example.com", PasswordHash: "h"}
	require.NoError(t, dir.Add(ctx, bob))

	unique, err = dir.IsUnique(ctx, domain.User{Username: "alice", Email: "bob@example.com"}, true)
	require.NoError(t, err)
	assert.False(t, unique, "update colliding with two accounts")
}

func TestUserDirectory_AddDuplicateIsConflict(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Add(ctx, alice()))

	err := dir.Add(ctx, alice())
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestUserDirectory_UpdateReplacesRow(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Add(ctx, alice()))

	renamed := domain.User{
		FullName:     "Alice Pleasance",
		Username:     "alice.p",
		Email:        "alice.p@example.com",
		PasswordHash: "hash-2",
	}
	require.NoError(t, dir.Update(ctx, "alice", renamed))

	_, err := dir.FindByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := dir.FindByUsername(ctx, "alice.p")
	require.NoError(t, err)
	assert.Equal(t, renamed, *got)
}

func TestUserDirectory_Delete(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Add(ctx, alice()))
	require.NoError(t, dir.Delete(ctx, "alice"))

	exists, err := dir.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserDirectory_ConcurrentAddsAreSerialized(t *testing.T) {
	dir := newDirectory(t, WithSerializedAccess(true))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- dir.Add(ctx, domain.User{
				FullName:     "User",
				Username:     fmt.Sprintf("user%d", i),
				Email:        fmt.Sprintf("user%d@example.com", i),
				PasswordHash: "h",
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < 20; i++ {
		exists, err := dir.Exists(ctx, fmt.Sprintf("user%d", i))
		require.NoError(t, err)
		assert.True(t, exists)
	}
}
