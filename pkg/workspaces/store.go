package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// Store is the Postgres-backed membership store. It connects as the
// service's own database role, so it is authoritative across tenants:
// tenant-scoped reads belong in pkg/tenancy, not here.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateWorkspace inserts a workspace and its OWNER membership in one transaction
func (s *Store) CreateWorkspace(ctx context.Context, req CreateWorkspaceRequest) (*Workspace, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("workspace owner is required")
	}
	slug := req.Slug
	if slug == "" {
		slug = generateSlug(name)
	}
	if slug == "" {
		return nil, fmt.Errorf("workspace slug is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertUser(ctx, tx, req.OwnerID, req.OwnerEmail); err != nil {
		return nil, err
	}

	ws := &Workspace{ID: uuid.New(), Name: name, Slug: slug, OwnerID: req.OwnerID}
	query := `
		INSERT INTO workspaces (id, name, slug, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, ws.ID, ws.Name, ws.Slug, ws.OwnerID).Scan(&ws.CreatedAt, &ws.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	query = `INSERT INTO memberships (id, workspace_id, user_id, role) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, query, uuid.New(), ws.ID, ws.OwnerID, rbac.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit workspace: %w", err)
	}
	return ws, nil
}

// GetWorkspace retrieves a workspace by ID
func (s *Store) GetWorkspace(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	query := `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`
	ws := &Workspace{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// GetMembership returns the membership of userID in workspaceID.
// A NULL or unknown stored role yields a Membership with an empty Role.
func (s *Store) GetMembership(ctx context.Context, workspaceID, userID uuid.UUID) (*Membership, error) {
	query := `
		SELECT id, workspace_id, user_id, role, created_at
		FROM memberships
		WHERE workspace_id = $1 AND user_id = $2
	`
	m := &Membership{}
	var role sql.NullString
	err := s.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(
		&m.ID, &m.WorkspaceID, &m.UserID, &role, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = scanRole(role)
	return m, nil
}

// ListMembers lists all members of a workspace, owner first
func (s *Store) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]*Member, error) {
	query := `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.created_at, u.email, u.name
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY (m.role = 'owner') DESC NULLS LAST, m.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		var role, name sql.NullString
		if err := rows.Scan(
			&member.ID, &member.WorkspaceID, &member.UserID, &role, &member.CreatedAt,
			&member.Email, &name,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		member.Role = scanRole(role)
		if name.Valid {
			member.Name = name.String
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

// AddMember adds a user with a non-owner role
func (s *Store) AddMember(ctx context.Context, workspaceID, userID uuid.UUID, role rbac.Role) (*Membership, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if role == rbac.RoleOwner {
		return nil, ErrOwnerInvariant
	}

	m := &Membership{ID: uuid.New(), WorkspaceID: workspaceID, UserID: userID, Role: role}
	query := `
		INSERT INTO memberships (id, workspace_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query, m.ID, workspaceID, userID, role).Scan(&m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return m, nil
}

// UpdateMemberRole changes a member's role. The owner's role cannot be
// changed and no member can be promoted to owner.
func (s *Store) UpdateMemberRole(ctx context.Context, workspaceID, userID uuid.UUID, role rbac.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if role == rbac.RoleOwner {
		return ErrOwnerInvariant
	}

	query := `
		UPDATE memberships SET role = $1
		WHERE workspace_id = $2 AND user_id = $3 AND role IS DISTINCT FROM 'owner'
	`
	result, err := s.db.ExecContext(ctx, query, role, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return s.explainNoRows(ctx, result, workspaceID, userID)
}

// RemoveMember deletes a non-owner membership
func (s *Store) RemoveMember(ctx context.Context, workspaceID, userID uuid.UUID) error {
	query := `
		DELETE FROM memberships
		WHERE workspace_id = $1 AND user_id = $2 AND role IS DISTINCT FROM 'owner'
	`
	result, err := s.db.ExecContext(ctx, query, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return s.explainNoRows(ctx, result, workspaceID, userID)
}

// explainNoRows distinguishes "no such member" from "member is the owner"
// when a guarded mutation touched nothing
func (s *Store) explainNoRows(ctx context.Context, result sql.Result, workspaceID, userID uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := s.GetMembership(ctx, workspaceID, userID); err != nil {
		return err
	}
	return ErrOwnerInvariant
}

// upsertUser records a user in the local directory on first sight
func upsertUser(ctx context.Context, tx *sql.Tx, userID uuid.UUID, email string) error {
	query := `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
	`
	if _, err := tx.ExecContext(ctx, query, userID, email); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func scanRole(role sql.NullString) rbac.Role {
	if !role.Valid {
		return ""
	}
	parsed, err := rbac.ParseRole(role.String)
	if err != nil {
		return ""
	}
	return parsed
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}
