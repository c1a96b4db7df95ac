package database

import (
	"context"
	"errors"
	"net"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStorage runs the user directory against a remote PostgreSQL server.
// Connect checks a connection out of the pool and Close on it releases it back.
type PostgresStorage struct {
	pool *pgxpool.Pool
	exec pgExecutor
}

// NewPostgresStorage wraps a pgx pool.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool, exec: pool}
}

// Pool exposes the underlying pool for migrations and readiness checks.
func (s *PostgresStorage) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStorage) Connect(ctx context.Context) (Conn, error) {
	if s.pool == nil {
		if s.exec == nil {
			return nil, connectionError("connect postgres", errors.New("storage not configured"))
		}
		return &pgConn{exec: s.exec, release: func() {}}, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, connectionError("acquire postgres connection", err)
	}
	return &pgConn{exec: conn, release: conn.Release}, nil
}

func (s *PostgresStorage) Placeholder() squirrel.PlaceholderFormat {
	return squirrel.Dollar
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := s.pool.Ping(ctx); err != nil {
		return connectionError("ping postgres", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type pgConn struct {
	exec    pgExecutor
	release func()
	closed  bool
}

func (c *pgConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if c.closed {
		return nil, connectionError("query", errConnClosed)
	}

	rows, err := c.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError("query", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, queryError("read row values", err, false)
		}
		row := make(Row, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("iterate rows", err)
	}

	return result, nil
}

func (c *pgConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if c.closed {
		return 0, connectionError("exec", errConnClosed)
	}

	tag, err := c.exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, classifyPgError("exec", err)
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.release()
	return nil
}

func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return queryError(op, err, pgErr.Code == pgerrcode.UniqueViolation)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return connectionError(op, err)
	}

	return queryError(op, err, false)
}
