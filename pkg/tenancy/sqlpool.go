package tenancy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// SQLPool adapts a database/sql handle. Each Acquire checks out one
// physical connection with db.Conn, so session settings made on it are
// visible to every statement run through it and to nothing else.
type SQLPool struct {
	db *sql.DB
}

// NewSQLPool creates a Pool over db
func NewSQLPool(db *sql.DB) *SQLPool {
	return &SQLPool{db: db}
}

// Acquire implements Pool
func (p *SQLPool) Acquire(ctx context.Context) (PooledConn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &sqlConn{conn: conn}, nil
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (c *sqlConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &sqlRow{row: c.conn.QueryRowContext(ctx, query, args...)}
}

func (c *sqlConn) Release() {
	c.conn.Close()
}

// Discard reports the driver connection as bad, which makes database/sql
// close it instead of returning it to the idle pool
func (c *sqlConn) Discard() {
	_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = c.conn.Close()
}

type sqlRow struct {
	row *sql.Row
}

func (r *sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { r.rows.Close() }
