package rbac

import "sort"

// rolePermissions is the process-wide role table. It is populated once at
// package init and never written afterwards, so concurrent readers need no locking.
var rolePermissions = buildRoleTable()

func buildRoleTable() map[Role]map[Permission]struct{} {
	member := []Permission{
		PermKPIView,
		PermObjectiveView,
		PermKeyResultView,
		PermReportView,
		PermKeyResultEdit,
	}

	admin := append([]Permission{}, member...)
	admin = append(admin,
		PermMemberInvite,
		PermMemberRemove,
		PermMemberUpdateRole,
	)
	for _, resource := range []Resource{ResourceKPI, ResourceObjective, ResourceKeyResult, ResourceReport} {
		for _, action := range []Action{ActionCreate, ActionEdit, ActionDelete, ActionView} {
			admin = append(admin, ResourcePermission(resource, action))
		}
	}

	owner := append([]Permission{}, admin...)
	owner = append(owner, PermWorkspaceManage, PermBillingManage)

	return map[Role]map[Permission]struct{}{
		RoleOwner:  toSet(owner),
		RoleAdmin:  toSet(admin),
		RoleMember: toSet(member),
	}
}

func toSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether role grants permission.
// Unknown roles grant nothing.
func HasPermission(role Role, permission Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}

// PermissionsOf returns the permissions granted to role, sorted.
// The returned slice is a copy and may be modified by the caller.
func PermissionsOf(role Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, 0, len(perms))
	for p := range perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasAny reports whether role grants at least one of permissions
func HasAny(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAll reports whether role grants every one of permissions.
// An empty list is trivially satisfied.
func HasAll(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}
