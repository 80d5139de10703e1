package tenancy

import (
	"context"
	"errors"
)

// ErrNoRows is returned by Row.Scan when a query matched nothing, whichever
// driver backs the pool
var ErrNoRows = errors.New("no rows in result set")

// Row is a single-row query result
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Conn is the query surface handed to code running inside a tenant context.
// It is only valid for the duration of the callback.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// PooledConn is a connection checked out of a Pool for exclusive use
type PooledConn interface {
	Conn

	// Release returns the connection to the pool
	Release()

	// Discard destroys the connection so it can never be handed out again
	Discard()
}

// Pool hands out dedicated connections
type Pool interface {
	Acquire(ctx context.Context) (PooledConn, error)
}
