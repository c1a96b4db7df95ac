package security

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/josemoyano04/user-manager/internal/core/port"
)

// Hasher produces argon2id hashes and verifies argon2id or bcrypt ones, so accounts
// created before the switch to argon2id can still sign in.
type Hasher struct {
	cfg Argon2Config
}

var _ port.PasswordHasher = (*Hasher)(nil)

// NewHasher validates cfg and returns a hasher using it for new hashes.
func NewHasher(cfg Argon2Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	return hashArgon2(password, h.cfg)
}

// Verify reports whether password matches encoded. Unknown formats are errors.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("bcrypt: %w", err)
		}
	}

	return verifyArgon2(password, encoded)
}

// NeedsRehash reports whether encoded was produced by an algorithm other than argon2id.
func (h *Hasher) NeedsRehash(encoded string) bool {
	return !strings.HasPrefix(encoded, argon2Variant+"$")
}

func isBcrypt(encoded string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, prefix) {
			return true
		}
	}
	return false
}
