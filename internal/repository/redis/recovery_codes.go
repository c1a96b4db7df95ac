package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/security"
)

const (
	defaultRecoveryPrefix = "recovery"

	fieldCodeHash  = "code_hash"
	fieldExpiresAt = "expires_at"
)

// validateScript compares and deletes in one step so two instances cannot both redeem a code.
// Returns 1 on match, 0 on miss or mismatch, -1 when expired.
var validateScript = red.NewScript(`
local entry = redis.call('HMGET', KEYS[1], 'code_hash', 'expires_at')
if not entry[1] then
	return 0
end
if tonumber(entry[2]) <= tonumber(ARGV[2]) then
	return -1
end
if entry[1] == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

// RecoveryCodeRepository stores recovery codes in Redis hashes shared by every instance.
// Only the SHA-256 of a code is persisted.
type RecoveryCodeRepository struct {
	client    *red.Client
	prefix    string
	lifetime  time.Duration
	retention time.Duration
	now       func() time.Time
}

var _ port.RecoveryCodeStore = (*RecoveryCodeRepository)(nil)

// NewRecoveryCodeRepository constructs a repository with the provided client, key prefix and code lifetime.
func NewRecoveryCodeRepository(client *red.Client, keyPrefix string, lifetime, retention time.Duration) *RecoveryCodeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRecoveryPrefix
	}

	return &RecoveryCodeRepository{
		client:    client,
		prefix:    prefix,
		lifetime:  lifetime,
		retention: retention,
		now:       time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *RecoveryCodeRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

func (r *RecoveryCodeRepository) Generate(ctx context.Context, email string) (domain.RecoveryCode, error) {
	code, err := security.GenerateNumericCode(domain.RecoveryCodeLength)
	if err != nil {
		return domain.RecoveryCode{}, fmt.Errorf("generate recovery code: %w", err)
	}
	return r.Save(ctx, email, code)
}

func (r *RecoveryCodeRepository) Save(ctx context.Context, email, code string) (domain.RecoveryCode, error) {
	key := r.key(email)
	if key == "" {
		return domain.RecoveryCode{}, errors.New("email is required")
	}
	if r.lifetime <= 0 {
		return domain.RecoveryCode{}, errors.New("lifetime must be positive")
	}

	expiresAt := r.now().Add(r.lifetime)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCodeHash:  security.HashToken(code),
		fieldExpiresAt: strconv.FormatInt(expiresAt.UnixMilli(), 10),
	})
	pipe.PExpire(ctx, key, r.lifetime+r.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return domain.RecoveryCode{}, fmt.Errorf("redis store recovery code: %w", err)
	}

	return domain.RecoveryCode{
		Email:     strings.TrimSpace(email),
		Code:      code,
		ExpiresAt: expiresAt,
	}, nil
}

func (r *RecoveryCodeRepository) Validate(ctx context.Context, email, code string) (bool, error) {
	key := r.key(email)
	if key == "" {
		return false, nil
	}

	result, err := validateScript.Run(ctx, r.client,
		[]string{key},
		security.HashToken(code),
		strconv.FormatInt(r.now().UnixMilli(), 10),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis validate recovery code: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case -1:
		return false, port.ErrCodeExpired
	default:
		return false, nil
	}
}

func (r *RecoveryCodeRepository) key(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, email)
}
