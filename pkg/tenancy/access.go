package tenancy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// AccessibleWorkspace is a workspace the user holds a role in
type AccessibleWorkspace struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
	Role rbac.Role `json:"role"`
}

// Both queries go through the membership join and also filter on the user
// explicitly, so they stay correct even where row-level security is off.
const (
	accessibleWorkspacesQuery = `
		SELECT w.id, w.name, w.slug, m.role
		FROM workspaces w
		JOIN memberships m ON m.workspace_id = w.id
		WHERE m.user_id = $1 AND m.role IS NOT NULL
		ORDER BY w.name ASC, w.id ASC
	`
	workspaceAccessQuery = `
		SELECT EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.user_id = $1 AND m.workspace_id = $2 AND m.role IS NOT NULL
		)
	`
)

// GetAccessibleWorkspaces lists only workspaces userID is an actual member of
func (b *Binder) GetAccessibleWorkspaces(ctx context.Context, userID uuid.UUID) ([]AccessibleWorkspace, error) {
	var out []AccessibleWorkspace
	err := b.WithTenantContext(ctx, userID, func(ctx context.Context, conn Conn) error {
		rows, err := conn.Query(ctx, accessibleWorkspacesQuery, userID)
		if err != nil {
			return fmt.Errorf("failed to list workspaces: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var ws AccessibleWorkspace
			var role string
			if err := rows.Scan(&ws.ID, &ws.Name, &ws.Slug, &role); err != nil {
				return fmt.Errorf("failed to scan workspace: %w", err)
			}
			parsed, err := rbac.ParseRole(role)
			if err != nil {
				continue
			}
			ws.Role = parsed
			out = append(out, ws)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateWorkspaceAccess reports whether userID is a member of workspaceID.
// Used to reject stale or forged workspace claims.
func (b *Binder) ValidateWorkspaceAccess(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error) {
	if workspaceID == uuid.Nil {
		return false, nil
	}

	var ok bool
	err := b.WithTenantContext(ctx, userID, func(ctx context.Context, conn Conn) error {
		if err := conn.QueryRow(ctx, workspaceAccessQuery, userID, workspaceID).Scan(&ok); err != nil {
			return fmt.Errorf("failed to validate workspace access: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}
