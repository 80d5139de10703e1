package rbac

import (
	"fmt"
	"strings"
)

// Role is a workspace-level role. The set is closed: custom roles are not supported.
type Role string

const (
	RoleOwner  Role = "owner"  // Workspace creator, exactly one per workspace
	RoleAdmin  Role = "admin"  // Manages members and all tenant data
	RoleMember Role = "member" // Read access plus progress check-ins
)

// AllRoles returns every role, most privileged first
func AllRoles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleMember}
}

// ParseRole converts a claim or database value into a Role.
// Matching is case-insensitive; anything outside the closed set is an error.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the built-in roles
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Resource is a tenant-scoped resource type managed by the business handlers
type Resource string

const (
	ResourceKPI       Resource = "kpi"
	ResourceObjective Resource = "objective"
	ResourceKeyResult Resource = "key_result"
	ResourceReport    Resource = "report"
)

// Action is an operation on a managed resource
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionView   Action = "view"
)

// Permission is a fine-grained capability, rendered as "resource:action"
type Permission string

const (
	PermWorkspaceManage  Permission = "workspace:manage"
	PermBillingManage    Permission = "billing:manage"
	PermMemberInvite     Permission = "member:invite"
	PermMemberRemove     Permission = "member:remove"
	PermMemberUpdateRole Permission = "member:update_role"

	PermKPICreate Permission = "kpi:create"
	PermKPIEdit   Permission = "kpi:edit"
	PermKPIDelete Permission = "kpi:delete"
	PermKPIView   Permission = "kpi:view"

	PermObjectiveCreate Permission = "objective:create"
	PermObjectiveEdit   Permission = "objective:edit"
	PermObjectiveDelete Permission = "objective:delete"
	PermObjectiveView   Permission = "objective:view"

	PermKeyResultCreate Permission = "key_result:create"
	PermKeyResultEdit   Permission = "key_result:edit"
	PermKeyResultDelete Permission = "key_result:delete"
	PermKeyResultView   Permission = "key_result:view"

	PermReportCreate Permission = "report:create"
	PermReportEdit   Permission = "report:edit"
	PermReportDelete Permission = "report:delete"
	PermReportView   Permission = "report:view"
)

// ResourcePermission returns the permission for an action on a managed resource
func ResourcePermission(resource Resource, action Action) Permission {
	return Permission(string(resource) + ":" + string(action))
}

// AllPermissions returns every permission in declaration order
func AllPermissions() []Permission {
	return []Permission{
		PermWorkspaceManage, PermBillingManage,
		PermMemberInvite, PermMemberRemove, PermMemberUpdateRole,
		PermKPICreate, PermKPIEdit, PermKPIDelete, PermKPIView,
		PermObjectiveCreate, PermObjectiveEdit, PermObjectiveDelete, PermObjectiveView,
		PermKeyResultCreate, PermKeyResultEdit, PermKeyResultDelete, PermKeyResultView,
		PermReportCreate, PermReportEdit, PermReportDelete, PermReportView,
	}
}

// ParsePermission converts a declared permission string into a Permission
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := permissionIndex[p]; !ok {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// Resource returns the resource half of the permission
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// String returns the permission in "resource:action" form
func (p Permission) String() string {
	return string(p)
}

// OwnerOnly reports whether the permission is reserved for the workspace owner
func (p Permission) OwnerOnly() bool {
	return p == PermWorkspaceManage || p == PermBillingManage
}

// Privileged reports whether decisions on this permission must be made against
// the authoritative membership record rather than a token claim.
func (p Permission) Privileged() bool {
	switch p {
	case PermWorkspaceManage, PermBillingManage, PermMemberRemove, PermMemberUpdateRole:
		return true
	}
	return false
}

var permissionIndex = func() map[Permission]struct{} {
	idx := make(map[Permission]struct{})
	for _, p := range AllPermissions() {
		idx[p] = struct{}{}
	}
	return idx
}()
