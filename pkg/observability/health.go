package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
)

// HealthChecker provides liveness and readiness probes
type HealthChecker struct {
	db      *sql.DB
	redis   *redis.Client
	version string

	// rowSecurity lists tables that must have row-level security enabled
	rowSecurity []string
}

// NewHealthChecker creates a new health checker. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client, version string) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   redis,
		version: version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// RequireRowSecurity makes readiness fail unless every named table has
// row-level security enabled
func (h *HealthChecker) RequireRowSecurity(tables ...string) *HealthChecker {
	h.rowSecurity = append(h.rowSecurity, tables...)
	return h
}

// Liveness returns 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, HealthStatus{Status: StatusHealthy, Timestamp: time.Now(), Version: h.version})
}

// Readiness checks every dependency and returns 503 when any is unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	writeStatus(w, h.Check(ctx))
}

func writeStatus(w http.ResponseWriter, status HealthStatus) {
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// Check performs a health check of all configured dependencies.
// Both Postgres and Redis are required: without the membership store no
// workspace request can be authorized, and without Redis no opaque session
// can be validated.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	merge := func(name string, dep DependencyStatus) {
		status.Dependencies[name] = dep
		switch {
		case dep.Status == StatusUnhealthy:
			status.Status = StatusUnhealthy
		case dep.Status == StatusDegraded && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}

	if h.db != nil {
		db := h.checkDatabase(ctx)
		merge("database", db)
		if len(h.rowSecurity) > 0 && db.Status != StatusUnhealthy {
			merge("row_level_security", h.checkRowSecurity(ctx))
		}
	}
	if h.redis != nil {
		merge("redis", h.checkRedis(ctx))
	}

	return status
}

func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	err := h.db.PingContext(ctx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		status.Status = StatusDegraded
		status.Message = "connection pool exhausted"
	}

	return status
}

func (h *HealthChecker) checkRowSecurity(ctx context.Context) DependencyStatus {
	status := DependencyStatus{Status: StatusHealthy, Timestamp: time.Now()}

	rows, err := h.db.QueryContext(ctx,
		`SELECT relname FROM pg_class WHERE relkind = 'r' AND relrowsecurity AND relname = ANY($1)`,
		pq.Array(h.rowSecurity))
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}
	defer rows.Close()

	enabled := make(map[string]bool, len(h.rowSecurity))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			status.Status = StatusUnhealthy
			status.Message = err.Error()
			return status
		}
		enabled[name] = true
	}
	if err := rows.Err(); err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	var missing []string
	for _, table := range h.rowSecurity {
		if !enabled[table] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		status.Status = StatusUnhealthy
		status.Message = "row-level security disabled on: " + strings.Join(missing, ", ")
	}
	return status
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	err := h.redis.Ping(ctx).Err()
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}
