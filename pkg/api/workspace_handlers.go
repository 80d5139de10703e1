package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
	"github.com/platinummonkey/tenantgate/pkg/workspaces"
)

// WorkspaceHandlers serves the caller's own identity and workspace list,
// workspace creation, and the workspace switch
type WorkspaceHandlers struct {
	store    WorkspaceStore
	lister   WorkspaceLister
	resolver guard.RoleResolver
	sessions SessionSwitcher
	limiter  middleware.Limiter
}

func newWorkspaceHandlers(deps Dependencies) *WorkspaceHandlers {
	return &WorkspaceHandlers{
		store:    deps.Workspaces,
		lister:   deps.Lister,
		resolver: deps.Resolver,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
	}
}

// RegisterRoutes mounts the routes. All of them are protected routes in the
// default table: they need a valid credential but no active workspace.
func (h *WorkspaceHandlers) RegisterRoutes(router *mux.Router, _ *guard.RouteTable) error {
	router.HandleFunc("/api/me", h.Me).Methods(http.MethodGet)
	router.HandleFunc("/api/workspaces", h.ListWorkspaces).Methods(http.MethodGet)
	router.HandleFunc("/api/workspaces", h.CreateWorkspace).Methods(http.MethodPost)
	router.Handle("/api/workspaces/switch",
		middleware.RateLimit(h.limiter, "workspace_switch")(http.HandlerFunc(h.SwitchWorkspace)),
	).Methods(http.MethodPost)
	return nil
}

// MeResponse describes the authenticated caller
type MeResponse struct {
	UserID      uuid.UUID      `json:"user_id"`
	Email       string         `json:"email,omitempty"`
	TokenKind   auth.TokenKind `json:"token_kind"`
	WorkspaceID *uuid.UUID     `json:"workspace_id,omitempty"`
	Role        *rbac.Role     `json:"role,omitempty"`
	Switchable  bool           `json:"switchable"`
}

// Me returns the caller's identity. The workspace and role are the
// credential's claims, not verified memberships.
func (h *WorkspaceHandlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	resp := MeResponse{UserID: p.UserID, Email: p.Email, TokenKind: p.TokenKind}
	if identity, ok := guard.IdentityFrom(r.Context()); ok {
		resp.WorkspaceID = identity.WorkspaceID
		resp.Role = identity.Role
		resp.Switchable = identity.Kind == auth.TokenKindSession && h.sessions != nil
	}
	httputil.WriteSuccess(w, resp)
}

// ListWorkspaces lists the workspaces the caller is a member of
func (h *WorkspaceHandlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	list, err := h.lister.GetAccessibleWorkspaces(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []tenancy.AccessibleWorkspace{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"workspaces": list})
}

// CreateWorkspaceBody is the body of POST /api/workspaces
type CreateWorkspaceBody struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// CreateWorkspace creates a workspace owned by the caller
func (h *WorkspaceHandlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var body CreateWorkspaceBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if err := httputil.RequireNonEmpty(strings.TrimSpace(body.Name), "name"); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	ws, err := h.store.CreateWorkspace(r.Context(), workspaces.CreateWorkspaceRequest{
		Name:       body.Name,
		Slug:       body.Slug,
		OwnerID:    p.UserID,
		OwnerEmail: p.Email,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := contextkeys.WithWorkspaceID(r.Context(), ws.ID.String())
	recordSuccess(r.WithContext(ctx), audit.EventTypeWorkspaceCreate, audit.ResourceTypeWorkspace, ws.ID.String(),
		map[string]interface{}{"slug": ws.Slug})
	httputil.WriteCreated(w, ws)
}

// SwitchWorkspaceBody is the body of POST /api/workspaces/switch
type SwitchWorkspaceBody struct {
	WorkspaceID string `json:"workspaceId"`
}

// SwitchWorkspaceResponse reports the new active workspace
type SwitchWorkspaceResponse struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Role        rbac.Role `json:"role"`
}

// SwitchWorkspace changes the active workspace of an opaque session after
// checking membership against the store. JWTs carry their workspace as a
// signed claim and cannot be switched here.
func (h *WorkspaceHandlers) SwitchWorkspace(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var body SwitchWorkspaceBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	workspaceID, err := uuid.Parse(body.WorkspaceID)
	if err != nil || workspaceID == uuid.Nil {
		httputil.WriteValidationError(w, "workspaceId: must be a UUID")
		return
	}

	identity, ok := guard.IdentityFrom(r.Context())
	if !ok || identity.Kind != auth.TokenKindSession || h.sessions == nil {
		writeError(w, r, auth.ErrNotSwitchable)
		return
	}

	member, err := h.lister.ValidateWorkspaceAccess(r.Context(), p.UserID, workspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !member {
		writeError(w, r, workspaces.ErrNotAMember)
		return
	}

	role, err := h.resolver.ResolveRole(r.Context(), p.UserID, workspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.sessions.SwitchWorkspace(r.Context(), identity.Token, workspaceID, role); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := contextkeys.WithWorkspaceID(r.Context(), workspaceID.String())
	recordSuccess(r.WithContext(ctx), audit.EventTypeWorkspaceSwitch, audit.ResourceTypeWorkspace, workspaceID.String(),
		map[string]interface{}{"role": string(role)})
	httputil.WriteSuccess(w, SwitchWorkspaceResponse{WorkspaceID: workspaceID, Role: role})
}

// requirePrincipal returns the principal the guard attached. Every route in
// this package is behind the guard, so a missing principal is a wiring bug.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (*guard.Principal, bool) {
	p, ok := guard.PrincipalFrom(r.Context())
	if !ok {
		observability.FromContext(r.Context()).WithField("path", r.URL.Path).Error("Handler reached without a principal")
		httputil.WriteInternalError(w)
		return nil, false
	}
	return p, true
}

// requireWorkspacePrincipal is requirePrincipal for workspace routes
func requireWorkspacePrincipal(w http.ResponseWriter, r *http.Request) (*guard.Principal, bool) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return nil, false
	}
	if !p.HasWorkspace() {
		observability.FromContext(r.Context()).WithField("path", r.URL.Path).Error("Workspace handler reached without a workspace")
		httputil.WriteInternalError(w)
		return nil, false
	}
	return p, true
}

func recordSuccess(r *http.Request, eventType audit.EventType, resourceType audit.ResourceType, resourceID string, metadata map[string]interface{}) {
	if err := audit.LogSuccess(r.Context(), eventType, resourceType, resourceID, metadata); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to record audit event")
	}
}
