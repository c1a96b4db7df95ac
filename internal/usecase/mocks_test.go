package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/infra/security"
	"github.com/josemoyano04/user-manager/internal/repository"
)

type fakeDirectory struct {
	users map[string]domain.User

	existsErr error
	findErr   error
	uniqueErr error
	addErr    error
	updateErr error
	deleteErr error

	uniqueCalls   int
	lastForUpdate bool
	addCalls      int
	updateCalls   int
	deleteCalls   int
}

func newFakeDirectory(users ...domain.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]domain.User)}
	for _, u := range users {
		d.users[u.Username] = u
	}
	return d
}

func (d *fakeDirectory) Exists(_ context.Context, username string) (bool, error) {
	if d.existsErr != nil {
		return false, d.existsErr
	}
	_, ok := d.users[username]
	return ok, nil
}

func (d *fakeDirectory) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	u, ok := d.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	for _, u := range d.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (d *fakeDirectory) IsUnique(_ context.Context, candidate domain.User, forUpdate bool) (bool, error) {
	d.uniqueCalls++
	d.lastForUpdate = forUpdate
	if d.uniqueErr != nil {
		return false, d.uniqueErr
	}
	matches := 0
	for _, u := range d.users {
		if u.Username == candidate.Username || u.Email == candidate.Email {
			matches++
		}
	}
	if forUpdate {
		return matches == 1, nil
	}
	return matches == 0, nil
}

func (d *fakeDirectory) Add(_ context.Context, user domain.User) error {
	d.addCalls++
	if d.addErr != nil {
		return d.addErr
	}
	d.users[user.Username] = user
	return nil
}

func (d *fakeDirectory) Update(_ context.Context, username string, user domain.User) error {
	d.updateCalls++
	if d.updateErr != nil {
		return d.updateErr
	}
	if _, ok := d.users[username]; !ok {
		return repository.ErrNotFound
	}
	delete(d.users, username)
	d.users[user.Username] = user
	return nil
}

func (d *fakeDirectory) Delete(_ context.Context, username string) error {
	d.deleteCalls++
	if d.deleteErr != nil {
		return d.deleteErr
	}
	if _, ok := d.users[username]; !ok {
		return repository.ErrNotFound
	}
	delete(d.users, username)
	return nil
}

// fakeHasher prefixes the password so tests can read hashes back. Hashes starting with
// "legacy:" verify but report that they need a rehash.
type fakeHasher struct {
	hashErr   error
	hashCalls int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	h.hashCalls++
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + password, nil
}

func (h *fakeHasher) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "hashed:"):
		return encoded == "hashed:"+password, nil
	case strings.HasPrefix(encoded, "legacy:"):
		return encoded == "legacy:"+password, nil
	default:
		return false, errors.New("unknown hash format")
	}
}

func (h *fakeHasher) NeedsRehash(encoded string) bool {
	return strings.HasPrefix(encoded, "legacy:")
}

type fakePolicy struct {
	err error
}

func (p fakePolicy) Validate(string) error {
	return p.err
}

type fakeCodes struct {
	generated   string
	expiresAt   time.Time
	saveErr     error
	validateOK  bool
	validateErr error

	generateCalls int
	saveCalls     int
	savedCode     string
	validateCalls int
}

func (c *fakeCodes) Generate(_ context.Context, email string) (domain.RecoveryCode, error) {
	c.generateCalls++
	if c.saveErr != nil {
		return domain.RecoveryCode{}, c.saveErr
	}
	return domain.RecoveryCode{Email: email, Code: c.generated, ExpiresAt: c.expiresAt}, nil
}

func (c *fakeCodes) Save(_ context.Context, email, code string) (domain.RecoveryCode, error) {
	c.saveCalls++
	c.savedCode = code
	if c.saveErr != nil {
		return domain.RecoveryCode{}, c.saveErr
	}
	return domain.RecoveryCode{Email: email, Code: code, ExpiresAt: c.expiresAt}, nil
}

func (c *fakeCodes) Validate(context.Context, string, string) (bool, error) {
	c.validateCalls++
	return c.validateOK, c.validateErr
}

type fakeMailer struct {
	err  error
	sent []domain.RecoveryEmail
}

func (m *fakeMailer) SendRecoveryCode(_ context.Context, email domain.RecoveryEmail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type fakeEvents struct {
	err error

	registered []domain.UserRegisteredEvent
	updated    []domain.UserUpdatedEvent
	deleted    []domain.UserDeletedEvent
	requested  []domain.PasswordRecoveryRequestedEvent
	changed    []domain.PasswordChangedEvent
}

func (e *fakeEvents) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	e.registered = append(e.registered, event)
	return e.err
}

func (e *fakeEvents) PublishUserUpdated(_ context.Context, event domain.UserUpdatedEvent) error {
	e.updated = append(e.updated, event)
	return e.err
}

func (e *fakeEvents) PublishUserDeleted(_ context.Context, event domain.UserDeletedEvent) error {
	e.deleted = append(e.deleted, event)
	return e.err
}

func (e *fakeEvents) PublishPasswordRecoveryRequested(_ context.Context, event domain.PasswordRecoveryRequestedEvent) error {
	e.requested = append(e.requested, event)
	return e.err
}

func (e *fakeEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	e.changed = append(e.changed, event)
	return e.err
}

// unexpectedDirectory fails every call; used where the directory must not be reached.
type unexpectedDirectory struct{}

func (unexpectedDirectory) Exists(context.Context, string) (bool, error) {
	return false, errors.New("unexpected call: Exists")
}

func (unexpectedDirectory) FindByUsername(context.Context, string) (*domain.User, error) {
	return nil, errors.New("unexpected call: FindByUsername")
}

func (unexpectedDirectory) FindByEmail(context.Context, string) (*domain.User, error) {
	return nil, errors.New("unexpected call: FindByEmail")
}

func (unexpectedDirectory) IsUnique(context.Context, domain.User, bool) (bool, error) {
	return false, errors.New("unexpected call: IsUnique")
}

func (unexpectedDirectory) Add(context.Context, domain.User) error {
	return errors.New("unexpected call: Add")
}

func (unexpectedDirectory) Update(context.Context, string, domain.User) error {
	return errors.New("unexpected call: Update")
}

func (unexpectedDirectory) Delete(context.Context, string) error {
	return errors.New("unexpected call: Delete")
}

func newTestTokens(t *testing.T) *security.TokenManager {
	t.Helper()
	tokens, err := security.NewTokenManager("test-secret", "HS256", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}
	return tokens
}

func aliceUser() domain.User {
	return domain.User{
		FullName:     "Alice Liddell",
		Username:     "alice",
		Email:        "alice@x.com",
		PasswordHash: "hashed:Secr3t!Pass",
	}
}
