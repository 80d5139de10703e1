package workspaces

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// MembershipReader reads authoritative membership rows
type MembershipReader interface {
	GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*Membership, error)
}

// MembershipResolver answers "what role does this user hold here" from the
// membership table. It never consults token claims and never caches.
type MembershipResolver struct {
	reader MembershipReader
	logger *observability.Logger
}

// NewMembershipResolver creates a resolver over reader
func NewMembershipResolver(reader MembershipReader, logger *observability.Logger) *MembershipResolver {
	return &MembershipResolver{reader: reader, logger: logger}
}

// ResolveRole returns the stored role of userID in workspaceID.
// It fails with ErrNotAMember when there is no membership and with
// ErrRoleMissing when the membership has no valid role.
func (r *MembershipResolver) ResolveRole(ctx context.Context, userID, workspaceID uuid.UUID) (rbac.Role, error) {
	if userID == uuid.Nil || workspaceID == uuid.Nil {
		observability.MembershipLookupsTotal.WithLabelValues("not_member").Inc()
		return "", ErrNotAMember
	}

	m, err := r.reader.GetMembership(ctx, workspaceID, userID)
	if errors.Is(err, ErrNotAMember) {
		observability.MembershipLookupsTotal.WithLabelValues("not_member").Inc()
		return "", ErrNotAMember
	}
	if err != nil {
		observability.MembershipLookupsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}

	if !m.Role.Valid() {
		observability.MembershipLookupsTotal.WithLabelValues("role_missing").Inc()
		r.logger.SecurityEvent("membership_role_missing", map[string]interface{}{
			"user_id":      userID.String(),
			"workspace_id": workspaceID.String(),
		})
		return "", ErrRoleMissing
	}

	observability.MembershipLookupsTotal.WithLabelValues("resolved").Inc()
	return m.Role, nil
}
