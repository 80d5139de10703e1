// Package workspaces owns workspaces, memberships and invitations, and
// resolves a user's authoritative role in a workspace.
//
// Every workspace has exactly one OWNER. CreateWorkspace writes the owner
// membership in the same transaction as the workspace; AddMember,
// UpdateMemberRole, RemoveMember and invitations refuse to create, change or
// remove an owner and return ErrOwnerInvariant instead. A partial unique
// index in the schema backs this up.
//
// MembershipResolver.ResolveRole is the only source of truth for roles on
// privileged or tenant-crossing requests:
//
//	role, err := resolver.ResolveRole(ctx, userID, workspaceID)
//	switch {
//	case errors.Is(err, workspaces.ErrNotAMember):
//	case errors.Is(err, workspaces.ErrRoleMissing):
//		// anomaly: never default a role
//	}
package workspaces
