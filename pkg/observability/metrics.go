package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts served requests by route template
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by route template
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// GuardDecisionsTotal counts access decisions by outcome and reason
	GuardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_guard_decisions_total",
			Help: "Total number of access guard decisions",
		},
		[]string{"outcome", "reason"},
	)

	// MembershipLookupsTotal counts authoritative role lookups by result
	MembershipLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_membership_lookups_total",
			Help: "Total number of membership role lookups",
		},
		[]string{"result"},
	)

	// TenantBindingDuration observes how long a connection stays bound to a user
	TenantBindingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_tenant_binding_duration_seconds",
			Help:    "Time a pooled connection spends bound to a tenant context",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"scope"},
	)

	// TenantClearFailuresTotal counts connections discarded because their
	// tenant binding could not be cleared
	TenantClearFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_tenant_clear_failures_total",
			Help: "Connections discarded after failing to clear the tenant binding",
		},
	)

	// SessionCacheTotal counts opaque session lookups by cache result
	SessionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_session_cache_total",
			Help: "Opaque session lookups by cache result",
		},
		[]string{"result"},
	)

	// RateLimitedTotal counts requests refused by a rate limiter
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_rate_limited_total",
			Help: "Requests refused by rate limiting",
		},
		[]string{"scope"},
	)

	// SecurityEventsTotal counts security anomalies by event
	SecurityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_security_events_total",
			Help: "Total number of security events",
		},
		[]string{"event"},
	)

	// PanicsRecoveredTotal counts panics recovered in background tasks
	PanicsRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_background_panics_total",
			Help: "Panics recovered in background tasks",
		},
		[]string{"task"},
	)
)

// RegisterMetrics registers all collectors with registry
func RegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GuardDecisionsTotal,
		MembershipLookupsTotal,
		TenantBindingDuration,
		TenantClearFailuresTotal,
		SessionCacheTotal,
		SecurityEventsTotal,
		RateLimitedTotal,
		PanicsRecoveredTotal,
	)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Routes are labelled by their mux template so ids in paths do not explode
// label cardinality.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
