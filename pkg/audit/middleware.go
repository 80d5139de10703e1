package audit

import (
	"net/http"
)

// Middleware makes an audit logger available to handlers and the guard
type Middleware struct {
	logger Logger
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(logger Logger) *Middleware {
	return &Middleware{logger: logger}
}

// Handler wraps an HTTP handler so FromContext returns the middleware's logger
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), m.logger)))
	})
}
