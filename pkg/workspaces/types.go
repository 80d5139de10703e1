package workspaces

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

var (
	// ErrNotAMember is returned when no membership row links user and workspace
	ErrNotAMember = errors.New("not a member of workspace")

	// ErrRoleMissing is returned when a membership exists but carries no valid role.
	// It is a data anomaly and must never be repaired by defaulting a role.
	ErrRoleMissing = errors.New("membership has no role")

	// ErrOwnerInvariant is returned by mutations that would leave a workspace
	// without exactly one owner
	ErrOwnerInvariant = errors.New("workspace must have exactly one owner")

	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrAlreadyMember      = errors.New("user is already a member")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationAccepted = errors.New("invitation already accepted")
	ErrSlugTaken          = errors.New("workspace slug already in use")
)

// Workspace is the tenant boundary
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership links a user to a workspace with one role. Role is empty when
// the stored role is NULL or not a known role.
type Membership struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	UserID      uuid.UUID `json:"user_id"`
	Role        rbac.Role `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is a membership joined with the user directory
type Member struct {
	Membership
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Invitation is a pending offer of membership. The plaintext token is only
// returned once, at creation.
type Invitation struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	Email       string     `json:"email"`
	Role        rbac.Role  `json:"role"`
	InvitedBy   uuid.UUID  `json:"invited_by"`
	InvitedAt   time.Time  `json:"invited_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  *uuid.UUID `json:"accepted_by,omitempty"`
}

// CreateWorkspaceRequest is the input to Store.CreateWorkspace
type CreateWorkspaceRequest struct {
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	OwnerID    uuid.UUID `json:"-"`
	OwnerEmail string    `json:"-"`
}

// DefaultInvitationTTL is how long an invitation stays acceptable
const DefaultInvitationTTL = 7 * 24 * time.Hour
