package guard

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// Identity headers forwarded to downstream handlers. Inbound copies are
// always stripped, so only values set here can reach a handler.
const (
	HeaderUserID      = "X-User-Id"
	HeaderWorkspaceID = "X-Workspace-Id"
	HeaderUserRole    = "X-User-Role"
)

// Principal is the identity an allowed request acts as. On workspace routes
// WorkspaceID and Role are resolved; on protected routes only the user is.
type Principal struct {
	UserID      uuid.UUID      `json:"user_id"`
	Email       string         `json:"email,omitempty"`
	WorkspaceID uuid.UUID      `json:"workspace_id,omitempty"`
	Role        rbac.Role      `json:"role,omitempty"`
	TokenKind   auth.TokenKind `json:"token_kind"`

	// RoleVerified is true when Role came from the membership store rather
	// than the token claim
	RoleVerified bool `json:"role_verified"`

	Identity *auth.SessionIdentity `json:"-"`
}

// HasWorkspace reports whether the principal is scoped to a workspace
func (p *Principal) HasWorkspace() bool {
	return p != nil && p.WorkspaceID != uuid.Nil
}

// Can reports whether the principal's role grants permission
func (p *Principal) Can(permission rbac.Permission) bool {
	return p.HasWorkspace() && rbac.HasPermission(p.Role, permission)
}

// WithPrincipal stores p in ctx along with the user and workspace ids used
// for log enrichment
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = contextkeys.WithPrincipal(ctx, p)
	if p.Identity != nil {
		ctx = contextkeys.WithIdentity(ctx, p.Identity)
	}
	ctx = contextkeys.WithUserID(ctx, p.UserID.String())
	if p.HasWorkspace() {
		ctx = contextkeys.WithWorkspaceID(ctx, p.WorkspaceID.String())
	}
	return ctx
}

// IdentityFrom returns the validated session identity behind the principal
func IdentityFrom(ctx context.Context) (*auth.SessionIdentity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*auth.SessionIdentity)
	return identity, ok && identity != nil
}

// PrincipalFrom returns the principal stored by the guard middleware
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p, ok && p != nil
}

func stripIdentityHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderWorkspaceID)
	h.Del(HeaderUserRole)
}

func injectIdentityHeaders(h http.Header, p *Principal) {
	h.Set(HeaderUserID, p.UserID.String())
	if p.HasWorkspace() {
		h.Set(HeaderWorkspaceID, p.WorkspaceID.String())
		h.Set(HeaderUserRole, string(p.Role))
	}
}
