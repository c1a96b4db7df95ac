package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/infra/database/migrations"
)

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Infof(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatalf(format, v...)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func runMigrations(ctx context.Context, db *sql.DB, dialect string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: log.Named("migrations").Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect %s: %w", dialect, err)
	}

	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrateSQLite brings the embedded schema up to date on an SQLite storage.
func MigrateSQLite(ctx context.Context, s *SQLiteStorage, log *zap.Logger) error {
	return runMigrations(ctx, s.DB(), "sqlite3", log)
}

// MigratePostgres brings the embedded schema up to date through a database/sql view of the pool.
func MigratePostgres(ctx context.Context, s *PostgresStorage, log *zap.Logger) error {
	db := stdlib.OpenDBFromPool(s.Pool())
	defer db.Close()

	return runMigrations(ctx, db, "postgres", log)
}

// Migrate dispatches to the engine specific migration.
func Migrate(ctx context.Context, s Storage, log *zap.Logger) error {
	switch st := s.(type) {
	case *SQLiteStorage:
		return MigrateSQLite(ctx, st, log)
	case *PostgresStorage:
		return MigratePostgres(ctx, st, log)
	default:
		return fmt.Errorf("migrations not supported for %T", s)
	}
}
