package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStorage runs the user directory on the embedded modernc SQLite engine.
// With a `mode=memory&cache=shared` DSN the database lives as long as the storage.
type SQLiteStorage struct {
	db     *sql.DB
	anchor *sql.Conn
}

// OpenSQLite opens the engine and pins one connection so a shared in-memory database survives
// between checkouts.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, connectionError("open sqlite", errors.New("dsn is empty"))
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, connectionError("open sqlite", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	anchor, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, connectionError("pin sqlite connection", err)
	}

	return &SQLiteStorage{db: db, anchor: anchor}, nil
}

// DB exposes the handle for migrations.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStorage) Connect(ctx context.Context) (Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, connectionError("checkout sqlite connection", err)
	}
	return &sqliteConn{conn: conn}, nil
}

func (s *SQLiteStorage) Placeholder() squirrel.PlaceholderFormat {
	return squirrel.Question
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return connectionError("ping sqlite", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	var errs []error
	if s.anchor != nil {
		errs = append(errs, s.anchor.Close())
	}
	errs = append(errs, s.db.Close())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type sqliteConn struct {
	conn *sql.Conn
}

func (c *sqliteConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if c.conn == nil {
		return nil, connectionError("query", errConnClosed)
	}

	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLiteError("query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, queryError("read columns", err, false)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, queryError("scan row", err, false)
		}
		row := make(Row, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError("iterate rows", err)
	}

	return result, nil
}

func (c *sqliteConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if c.conn == nil {
		return 0, connectionError("exec", errConnClosed)
	}

	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classifySQLiteError("exec", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, queryError("rows affected", err, false)
	}
	return affected, nil
}

func (c *sqliteConn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return connectionError("release sqlite connection", err)
	}
	return nil
}

func classifySQLiteError(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		return connectionError(op, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		unique := code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
		return queryError(op, err, unique)
	}

	return queryError(op, err, false)
}
