package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/workspaces"
)

const workspacePath = "/api/workspaces/{" + guard.WorkspaceVar + "}"

// MemberHandlers serves membership and invitation management
type MemberHandlers struct {
	store   WorkspaceStore
	limiter middleware.Limiter
	ttl     time.Duration
}

func newMemberHandlers(deps Dependencies) *MemberHandlers {
	return &MemberHandlers{
		store:   deps.Workspaces,
		limiter: deps.Limiter,
		ttl:     deps.InvitationTTL,
	}
}

// RegisterRoutes mounts the member routes and declares their permissions
func (h *MemberHandlers) RegisterRoutes(router *mux.Router, routes *guard.RouteTable) error {
	endpoints := []struct {
		path       string
		method     string
		permission rbac.Permission
		handler    http.HandlerFunc
	}{
		{workspacePath + "/members", http.MethodGet, rbac.PermMemberInvite, h.ListMembers},
		{workspacePath + "/members/{userId}", http.MethodPatch, rbac.PermMemberUpdateRole, h.UpdateMemberRole},
		{workspacePath + "/members/{userId}", http.MethodDelete, rbac.PermMemberRemove, h.RemoveMember},
		{workspacePath + "/invitations", http.MethodGet, rbac.PermMemberInvite, h.ListInvitations},
		{workspacePath + "/invitations", http.MethodPost, rbac.PermMemberInvite, h.CreateInvitation},
		{workspacePath + "/invitations/{invitationId}", http.MethodDelete, rbac.PermMemberInvite, h.RevokeInvitation},
	}
	for _, e := range endpoints {
		err := routes.Add(guard.Rule{
			Path:       e.path,
			Methods:    []string{e.method},
			Kind:       guard.RouteWorkspace,
			API:        true,
			Permission: e.permission,
		})
		if err != nil {
			return err
		}
		router.HandleFunc(e.path, e.handler).Methods(e.method)
	}

	// Protected in the default table: the invitee is not a member yet
	router.Handle("/api/invitations/accept",
		middleware.RateLimit(h.limiter, "invitation_accept")(http.HandlerFunc(h.AcceptInvitation)),
	).Methods(http.MethodPost)
	return nil
}

// ListMembers lists the workspace's members
func (h *MemberHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	p, ok := requireWorkspacePrincipal(w, r)
	if !ok {
		return
	}

	members, err := h.store.ListMembers(r.Context(), p.WorkspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if members == nil {
		members = []*workspaces.Member{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// UpdateRoleBody is the body of PATCH .../members/{userId}
type UpdateRoleBody struct {
	Role string `json:"role"`
}

// UpdateMemberRole changes a member's role. The owner's role cannot change.
func (h *MemberHandlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	p, ok := requireWorkspacePrincipal(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}
	var body UpdateRoleBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	role, err := rbac.ParseRole(body.Role)
	if err != nil {
		httputil.WriteValidationError(w, "role: "+err.Error())
		return
	}

	if err := h.store.UpdateMemberRole(r.Context(), p.WorkspaceID, userID, role); err != nil {
		writeError(w, r, err)
		return
	}

	recordSuccess(r, audit.EventTypeMemberRoleChange, audit.ResourceTypeMembership, userID.String(),
		map[string]interface{}{"role": string(role)})
	httputil.WriteSuccess(w, map[string]interface{}{"user_id": userID, "role": role})
}

// RemoveMember removes a member. The owner cannot be removed.
func (h *MemberHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := requireWorkspacePrincipal(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	if err := h.store.RemoveMember(r.Context(), p.WorkspaceID, userID); err != nil {
		writeError(w, r, err)
		return
	}

	recordSuccess(r, audit.EventTypeMemberRemove, audit.ResourceTypeMembership, userID.String(), nil)
	httputil.WriteNoContent(w)
}

// ListInvitations lists pending invitations
func (h *MemberHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	p, ok := requireWorkspacePrincipal(w, r)
	if !ok {
		return
	}

	invitations, err := h.store.ListInvitations(r.Context(), p.WorkspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if invitations == nil {
		invitations = []*workspaces.Invitation{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": invitations})
}

// InviteBody is the body of POST .../invitations
type InviteBody struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// InviteResponse carries the invitation and its plaintext token. The token
// is only ever returned here.
type InviteResponse struct {
	Invitation *workspaces.Invitation `json:"invitation"`
	Token      string                 `json:"token"`
}

// CreateInvitation invites an email address to the workspace
func (h *MemberHandlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	p, ok := requireWorkspacePrincipal(w, r)
	if !ok {
		return
	}
	var body InviteBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" || !strings.Contains(email, "@") {
		httputil.WriteValidationError(w, "email: must be an email address")
		return
	}
	role := rbac.RoleMember
	if body.Role != "" {
		parsed, err := rbac.ParseRole(body.Role)
		if err != nil {
			httputil.WriteValidationError(w, "role: "+err.Error())
			return
		}
		role = parsed
	}

	inv, token, err := h.store.CreateInvitation(r.Context(), p.WorkspaceID, email, role, p.UserID, h.ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recordSuccess(r, audit.EventTypeMemberInvite, audit.ResourceTypeInvitation, inv.ID.String(),
		map[string]interface{}{"email": inv.Email, "role": string(inv.Role)})
	httputil.WriteCreated(w, InviteResponse{Invitation: inv, Token: token})
}

// RevokeInvitation deletes a pending invitation
func (h *MemberHandlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	p, ok := requireWorkspacePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "invitationId")
	if !ok {
		return
	}

	if err := h.store.RevokeInvitation(r.Context(), p.WorkspaceID, id); err != nil {
		writeError(w, r, err)
		return
	}

	recordSuccess(r, audit.EventTypeInvitationRevoke, audit.ResourceTypeInvitation, id.String(), nil)
	httputil.WriteNoContent(w)
}

// AcceptBody is the body of POST /api/invitations/accept
type AcceptBody struct {
	Token string `json:"token"`
}

// AcceptInvitation turns an invitation token into a membership for the caller
func (h *MemberHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var body AcceptBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if err := httputil.RequireNonEmpty(body.Token, "token"); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	m, err := h.store.AcceptInvitation(r.Context(), body.Token, p.UserID, p.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := contextkeys.WithWorkspaceID(r.Context(), m.WorkspaceID.String())
	recordSuccess(r.WithContext(ctx), audit.EventTypeInvitationAccept, audit.ResourceTypeMembership, m.UserID.String(),
		map[string]interface{}{"role": string(m.Role)})
	httputil.WriteSuccess(w, m)
}
