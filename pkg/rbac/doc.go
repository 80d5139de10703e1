// Package rbac is the permission model for workspaces.
//
// # Overview
//
// Every workspace membership carries exactly one Role from a closed set:
//
//	RoleOwner   - the workspace creator; one per workspace
//	RoleAdmin   - manages members and all tenant data
//	RoleMember  - reads tenant data and records key result progress
//
// A Permission names a single capability in "resource:action" form, for
// example "kpi:create" or "member:invite". The mapping from role to
// permissions is a static table built at init:
//
//	permissionsOf(member) ⊆ permissionsOf(admin) ⊆ permissionsOf(owner)
//
// with two exceptions, workspace:manage and billing:manage, which only the
// owner holds.
//
// # Usage
//
// Components never compare role strings directly. Parse untrusted input
// first, then ask the table:
//
//	role, err := rbac.ParseRole(claim)
//	if err != nil {
//		return err
//	}
//	if !rbac.HasPermission(role, rbac.PermKPICreate) {
//		return ErrForbidden
//	}
//
// HasAny and HasAll cover routes that accept several capabilities.
//
// # Privileged permissions
//
// Permission.Privileged marks capabilities (workspace and billing
// management, member removal, role changes) that must be decided against
// the membership store, never against a role claim carried by a token.
package rbac
