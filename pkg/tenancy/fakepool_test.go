package tenancy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// fakePool simulates a fixed-size pool of Postgres sessions. Session
// settings persist on a connection across checkouts exactly like real
// session-level set_config does, so a missing clear would leak.
type fakePool struct {
	idle      chan *fakeConn
	nextID    int64
	mu        sync.Mutex
	all       []*fakeConn
	discarded int
	released  int
}

func newFakePool(size int) *fakePool {
	p := &fakePool{idle: make(chan *fakeConn, size)}
	for i := 0; i < size; i++ {
		p.idle <- p.newConn()
	}
	return p
}

func (p *fakePool) newConn() *fakeConn {
	c := &fakeConn{pool: p, id: atomic.AddInt64(&p.nextID, 1), settings: map[string]string{}}
	p.mu.Lock()
	p.all = append(p.all, c)
	p.mu.Unlock()
	return c
}

func (p *fakePool) Acquire(ctx context.Context) (PooledConn, error) {
	select {
	case c := <-p.idle:
		c.checkouts++
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakePool) stats() (released, discarded int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released, p.discarded
}

type fakeConn struct {
	pool      *fakePool
	id        int64
	checkouts int

	mu        sync.Mutex
	settings  map[string]string
	role      string
	statements []string

	failBind  bool
	failClear bool
	closed    bool
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("conn closed")
	}
	c.statements = append(c.statements, query)

	switch {
	case query == bindQuery:
		if c.failBind {
			return errors.New("bind failed")
		}
		c.settings[UserSetting] = args[0].(string)
		c.settings[WorkspaceSetting] = args[1].(string)
	case query == clearQuery:
		if c.failClear {
			return errors.New("server closed the connection unexpectedly")
		}
		c.settings[UserSetting] = ""
		c.settings[WorkspaceSetting] = ""
	case strings.HasPrefix(query, "SET ROLE "):
		c.role = strings.Trim(strings.TrimPrefix(query, "SET ROLE "), `"`)
	case query == "RESET ROLE":
		if c.failClear {
			return errors.New("server closed the connection unexpectedly")
		}
		c.role = ""
	}
	return nil
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return nil, errors.New("not supported by fake")
}

// QueryRow answers "current_setting('<name>')" style lookups
func (c *fakeConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fakeRow{value: c.settings[args[0].(string)]}
}

func (c *fakeConn) Release() {
	c.pool.mu.Lock()
	c.pool.released++
	c.pool.mu.Unlock()
	c.pool.idle <- c
}

func (c *fakeConn) Discard() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.pool.mu.Lock()
	c.pool.discarded++
	c.pool.mu.Unlock()
	// The pool dials a replacement so capacity is preserved
	c.pool.idle <- c.pool.newConn()
}

func (c *fakeConn) setting(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings[name]
}

type fakeRow struct {
	value string
}

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.value
	return nil
}

func currentUser(ctx context.Context, conn Conn) string {
	var v string
	_ = conn.QueryRow(ctx, "SELECT current_setting($1, true)", UserSetting).Scan(&v)
	return v
}
