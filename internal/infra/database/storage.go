package database

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
)

var (
	// ErrConnection indicates the engine could not be reached or a connection could not be checked out.
	ErrConnection = errors.New("storage: connection error")
	// ErrQuery indicates the engine rejected or failed to run a statement.
	ErrQuery = errors.New("storage: query error")
	// ErrUniqueViolation marks query errors caused by a unique or primary key constraint.
	ErrUniqueViolation = errors.New("storage: unique constraint violated")
)

// Row holds the column values of one result row in select order.
type Row []any

// Conn is a connection checked out for exactly one unit of work. Close returns it.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Close() error
}

// Storage is the contract the user directory runs against.
type Storage interface {
	Connect(ctx context.Context) (Conn, error)
	Placeholder() squirrel.PlaceholderFormat
	Ping(ctx context.Context) error
	Close() error
}

func connectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

func queryError(op string, err error, unique bool) error {
	if unique {
		return fmt.Errorf("%w: %w: %s: %w", ErrQuery, ErrUniqueViolation, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrQuery, op, err)
}

var errConnClosed = errors.New("connection already closed")

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
