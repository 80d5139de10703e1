// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantgate/pkg/contextkeys"
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal := guard.PrincipalFrom(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains guard.Principal
	// Set by: guard.Guard.Middleware (pkg/guard/middleware.go) on Allowed
	// Required by: All workspace-scoped business handlers
	// Type: guard.Principal
	PrincipalKey Key = "principal"

	// IdentityKey contains *auth.SessionIdentity
	// Set by: guard.Guard.Middleware once a credential validated
	// Used by: Workspace switch handler (needs the raw session token)
	// Type: *auth.SessionIdentity
	IdentityKey Key = "session_identity"

	// TenantScopeKey contains tenancy.Scope
	// Set by: tenancy.Binder.WithWorkspaceContext
	// Used by: tenancy.EnsureSameTenant, data access helpers
	// Type: tenancy.Scope
	TenantScopeKey Key = "tenant_scope"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: guard middleware after authentication
	// Used by: Logger, audit trail
	// Type: string
	UserIDKey Key = "user_id"

	// WorkspaceIDKey contains the resolved workspace ID string
	// Set by: guard middleware on Allowed workspace-scoped requests
	// Used by: Logger, audit trail
	// Type: string
	WorkspaceIDKey Key = "workspace_id"

	// LoggerKey contains *observability.Logger
	// Set by: middleware.RequestLogger
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: audit.WithLogger
	// Used by: guard and handlers that record security events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"
)

// WithPrincipal adds the authorized principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithIdentity adds the validated session identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithTenantScope adds the bound tenant scope to the context
func WithTenantScope(ctx context.Context, scope interface{}) context.Context {
	return context.WithValue(ctx, TenantScopeKey, scope)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithWorkspaceID adds workspace ID to the context
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, WorkspaceIDKey, workspaceID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetWorkspaceID retrieves workspace ID from context
func GetWorkspaceID(ctx context.Context) string {
	if workspaceID, ok := ctx.Value(WorkspaceIDKey).(string); ok {
		return workspaceID
	}
	return ""
}
