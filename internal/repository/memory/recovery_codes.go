// Package memory provides process local stores.
package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/core/domain"
	"github.com/josemoyano04/user-manager/internal/core/port"
	"github.com/josemoyano04/user-manager/internal/infra/security"
)

// RecoveryCodeStore keeps one outstanding recovery code per email in process memory.
type RecoveryCodeStore struct {
	mu        sync.Mutex
	entries   map[string]domain.RecoveryCode
	lifetime  time.Duration
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger
}

var _ port.RecoveryCodeStore = (*RecoveryCodeStore)(nil)

// NewRecoveryCodeStore builds a store issuing codes valid for lifetime. Expired entries are kept
// for retention so late attempts still report expiry, then purged.
func NewRecoveryCodeStore(lifetime, retention time.Duration, log *zap.Logger) *RecoveryCodeStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecoveryCodeStore{
		entries:   make(map[string]domain.RecoveryCode),
		lifetime:  lifetime,
		retention: retention,
		now:       time.Now,
		log:       log,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *RecoveryCodeStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.mu.Lock()
		s.now = clock
		s.mu.Unlock()
	}
}

func (s *RecoveryCodeStore) Generate(ctx context.Context, email string) (domain.RecoveryCode, error) {
	code, err := security.GenerateNumericCode(domain.RecoveryCodeLength)
	if err != nil {
		return domain.RecoveryCode{}, fmt.Errorf("generate recovery code: %w", err)
	}
	return s.Save(ctx, email, code)
}

func (s *RecoveryCodeStore) Save(_ context.Context, email, code string) (domain.RecoveryCode, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.RecoveryCode{}, fmt.Errorf("email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := domain.RecoveryCode{
		Email:     email,
		Code:      code,
		ExpiresAt: s.now().Add(s.lifetime),
	}
	s.entries[email] = entry
	return entry, nil
}

func (s *RecoveryCodeStore) Validate(_ context.Context, email, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[strings.TrimSpace(email)]
	if !ok {
		return false, nil
	}
	if entry.IsExpired(s.now()) {
		return false, port.ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
		return false, nil
	}

	delete(s.entries, entry.Email)
	return true, nil
}

// PurgeExpired drops entries that expired more than the retention window before now and
// returns how many were removed.
func (s *RecoveryCodeStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retention)
	removed := 0
	for email, entry := range s.entries {
		if entry.IsExpired(cutoff) {
			delete(s.entries, email)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (s *RecoveryCodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run purges expired entries every interval until ctx is done.
func (s *RecoveryCodeStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			s.mu.Unlock()

			if removed := s.PurgeExpired(now); removed > 0 {
				s.log.Debug("purged expired recovery codes", zap.Int("removed", removed))
			}
		}
	}
}
