package tenancy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

var (
	// ErrTenantMismatch is returned when a resource belongs to a workspace
	// other than the one bound to the current context
	ErrTenantMismatch = errors.New("resource belongs to another workspace")

	// ErrNoTenantScope is returned when workspace-scoped code runs outside
	// WithWorkspaceContext
	ErrNoTenantScope = errors.New("no tenant scope bound")

	// ErrInvalidTenant is returned when asked to bind a nil user or workspace
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

// Scope is the identity bound to the connection serving the current callback
type Scope struct {
	UserID      uuid.UUID
	WorkspaceID uuid.UUID
}

// HasWorkspace reports whether a workspace is bound
func (s Scope) HasWorkspace() bool {
	return s.WorkspaceID != uuid.Nil
}

// ScopeFrom returns the scope bound by WithTenantContext or WithWorkspaceContext
func ScopeFrom(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(contextkeys.TenantScopeKey).(Scope)
	return scope, ok
}

// EnsureSameTenant checks that a resource fetched inside a workspace context
// belongs to the bound workspace. A mismatch is logged as a security event,
// separately from ordinary permission denials.
func EnsureSameTenant(ctx context.Context, resourceWorkspaceID uuid.UUID) error {
	scope, ok := ScopeFrom(ctx)
	if !ok || !scope.HasWorkspace() {
		return ErrNoTenantScope
	}
	if scope.WorkspaceID == resourceWorkspaceID {
		return nil
	}

	observability.FromContext(ctx).SecurityEvent("tenant_mismatch", map[string]interface{}{
		"bound_workspace_id":    scope.WorkspaceID.String(),
		"resource_workspace_id": resourceWorkspaceID.String(),
		"user_id":               scope.UserID.String(),
	})
	return ErrTenantMismatch
}
