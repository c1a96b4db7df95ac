package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/infra/config"
)

// WaitForStorage pings the storage with capped exponential backoff until it answers or
// timeout elapses.
func WaitForStorage(ctx context.Context, s Storage, timeout time.Duration, log *zap.Logger) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	backoff := retry.NewExponential(200 * time.Millisecond)
	backoff = retry.WithCappedDuration(5*time.Second, backoff)
	backoff = retry.WithMaxDuration(timeout, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.Ping(ctx); err != nil {
			log.Warn("storage not ready", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("wait for storage: %w", err)
	}

	if attempt > 1 {
		log.Info("storage ready", zap.Int("attempts", attempt))
	}
	return nil
}

// Open builds the storage selected by the configured driver.
func Open(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		pool, err := NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, connectionError("open postgres", err)
		}
		return NewPostgresStorage(pool), nil
	case config.StorageDriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLite.DSN)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite storage opened", zap.String("dsn", cfg.SQLite.DSN))
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
