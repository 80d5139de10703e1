package workspaces

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// CreateInvitation records an invitation and returns it with the plaintext
// token. Delivery is the caller's concern. Re-inviting the same email
// replaces the pending invitation.
func (s *Store) CreateInvitation(ctx context.Context, workspaceID uuid.UUID, email string, role rbac.Role, invitedBy uuid.UUID, ttl time.Duration) (*Invitation, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("a valid email is required")
	}
	if !role.Valid() {
		return nil, "", ErrInvalidRole
	}
	if role == rbac.RoleOwner {
		return nil, "", ErrOwnerInvariant
	}
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}

	token, err := generateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	inv := &Invitation{
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        role,
		InvitedBy:   invitedBy,
		InvitedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	query := `
		INSERT INTO invitations (id, workspace_id, email, role, token_hash, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (workspace_id, email) WHERE accepted_at IS NULL DO UPDATE
		SET role = EXCLUDED.role, token_hash = EXCLUDED.token_hash, invited_by = EXCLUDED.invited_by,
		    invited_at = EXCLUDED.invited_at, expires_at = EXCLUDED.expires_at
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, uuid.New(), workspaceID, email, role, hashToken(token),
		invitedBy, inv.InvitedAt, inv.ExpiresAt).Scan(&inv.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create invitation: %w", err)
	}

	return inv, token, nil
}

// ListInvitations lists pending invitations of a workspace
func (s *Store) ListInvitations(ctx context.Context, workspaceID uuid.UUID) ([]*Invitation, error) {
	query := `
		SELECT id, workspace_id, email, role, invited_by, invited_at, expires_at
		FROM invitations
		WHERE workspace_id = $1 AND accepted_at IS NULL
		ORDER BY invited_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(
			&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role,
			&inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	return invitations, nil
}

// AcceptInvitation turns a pending invitation into a membership for userID
func (s *Store) AcceptInvitation(ctx context.Context, token string, userID uuid.UUID, email string) (*Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, workspace_id, role, expires_at, accepted_at
		FROM invitations
		WHERE token_hash = $1
		FOR UPDATE
	`
	var (
		id, workspaceID uuid.UUID
		role            rbac.Role
		expiresAt       time.Time
		acceptedAt      sql.NullTime
	)
	err = tx.QueryRowContext(ctx, query, hashToken(token)).Scan(&id, &workspaceID, &role, &expiresAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return nil, ErrInvitationAccepted
	}
	if time.Now().After(expiresAt) {
		return nil, ErrInvitationExpired
	}
	if !role.Valid() || role == rbac.RoleOwner {
		return nil, ErrInvalidRole
	}

	if err := upsertUser(ctx, tx, userID, email); err != nil {
		return nil, err
	}

	m := &Membership{ID: uuid.New(), WorkspaceID: workspaceID, UserID: userID, Role: role}
	query = `
		INSERT INTO memberships (id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query, m.ID, workspaceID, userID, role).Scan(&m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	query = `UPDATE invitations SET accepted_at = NOW(), accepted_by = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, userID, id); err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation: %w", err)
	}
	return m, nil
}

// RevokeInvitation deletes a pending invitation of workspaceID
func (s *Store) RevokeInvitation(ctx context.Context, workspaceID, id uuid.UUID) error {
	query := `DELETE FROM invitations WHERE id = $1 AND workspace_id = $2 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// CleanupExpiredInvitations removes expired, unaccepted invitations
func (s *Store) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	query := `DELETE FROM invitations WHERE expires_at < NOW() AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	return result.RowsAffected()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
