package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration

	// UsePgx serves tenant-bound work from a pgx pool instead of database/sql
	UsePgx bool
}

// ConnectionManager owns the database handles. Management queries
// (workspaces, memberships, invitations) use the database/sql handle;
// tenant-bound work goes through TenantPool.
type ConnectionManager struct {
	db     *sql.DB
	pgx    *pgxpool.Pool
	config ConnectionConfig
}

// ConnectionStats holds statistics for the managed pools
type ConnectionStats struct {
	SQL sql.DBStats
	Pgx *pgxpool.Stat
}

// NewConnectionManager opens and pings the configured pools
func NewConnectionManager(ctx context.Context, config ConnectionConfig) (*ConnectionManager, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cm, err := newConnectionManager(ctx, db, config)
	if err != nil {
		db.Close()
		return nil, err
	}

	if config.UsePgx {
		pool, err := openPgxPool(ctx, config)
		if err != nil {
			db.Close()
			return nil, err
		}
		cm.pgx = pool
	}

	return cm, nil
}

func newConnectionManager(ctx context.Context, db *sql.DB, config ConnectionConfig) (*ConnectionManager, error) {
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	}
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ConnectionManager{db: db, config: config}, nil
}

func openPgxPool(ctx context.Context, config ConnectionConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = int32(config.MaxConns)
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = int32(config.MinConns)
	}
	if config.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxLifetime
	}
	if config.MaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping pgx pool: %w", err)
	}
	return pool, nil
}

// DB returns the database/sql handle
func (cm *ConnectionManager) DB() *sql.DB {
	return cm.db
}

// Pgx returns the pgx pool, or nil when it is not enabled
func (cm *ConnectionManager) Pgx() *pgxpool.Pool {
	return cm.pgx
}

// TenantPool returns the pool tenant bindings are made on
func (cm *ConnectionManager) TenantPool() tenancy.Pool {
	if cm.pgx != nil {
		return tenancy.NewPgxPool(cm.pgx)
	}
	return tenancy.NewSQLPool(cm.db)
}

// HealthCheck pings every managed pool
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unhealthy: %w", err)
	}
	if cm.pgx != nil {
		if err := cm.pgx.Ping(ctx); err != nil {
			return fmt.Errorf("pgx pool unhealthy: %w", err)
		}
	}
	return nil
}

// Stats returns connection pool statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	stats := ConnectionStats{SQL: cm.db.Stats()}
	if cm.pgx != nil {
		stats.Pgx = cm.pgx.Stat()
	}
	return stats
}

// Close closes all pools
func (cm *ConnectionManager) Close() error {
	if cm.pgx != nil {
		cm.pgx.Close()
	}
	if err := cm.db.Close(); err != nil {
		return fmt.Errorf("database close error: %w", err)
	}
	return nil
}
