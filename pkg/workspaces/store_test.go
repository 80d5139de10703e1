package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockStore creates a Store over sqlmock
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock, db
}

func TestCreateWorkspace(t *testing.T) {
	ctx := context.Background()
	ownerID := uuid.New()

	t.Run("creates workspace and owner membership atomically", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(ownerID, "owner@example.com").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO workspaces`).
			WithArgs(sqlmock.AnyArg(), "Acme Corp", "acme-corp", ownerID).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(`INSERT INTO memberships`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), ownerID, rbac.RoleOwner).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ws, err := store.CreateWorkspace(ctx, CreateWorkspaceRequest{Name: "Acme Corp", OwnerID: ownerID, OwnerEmail: "owner@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "acme-corp", ws.Slug)
		assert.Equal(t, ownerID, ws.OwnerID)
		assert.NotEqual(t, uuid.Nil, ws.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner membership failure rolls back", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO workspaces`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(`INSERT INTO memberships`).WillReturnError(errors.New("boom"))
		mock.ExpectRollback()

		_, err := store.CreateWorkspace(ctx, CreateWorkspaceRequest{Name: "Acme", OwnerID: ownerID})
		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate slug", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO workspaces`).WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := store.CreateWorkspace(ctx, CreateWorkspaceRequest{Name: "Acme", OwnerID: ownerID})
		assert.ErrorIs(t, err, ErrSlugTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validation", func(t *testing.T) {
		store, _, _ := newMockStore(t)

		_, err := store.CreateWorkspace(ctx, CreateWorkspaceRequest{Name: "  ", OwnerID: ownerID})
		assert.Error(t, err)
		_, err = store.CreateWorkspace(ctx, CreateWorkspaceRequest{Name: "Acme"})
		assert.Error(t, err)
		_, err = store.CreateWorkspace(ctx, CreateWorkspaceRequest{Name: "!!!", OwnerID: ownerID})
		assert.Error(t, err)
	})
}

func TestGetMembership(t *testing.T) {
	ctx := context.Background()
	workspaceID, userID := uuid.New(), uuid.New()
	cols := []string{"id", "workspace_id", "user_id", "role", "created_at"}

	t.Run("found", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(`SELECT id, workspace_id, user_id, role, created_at\s+FROM memberships`).
			WithArgs(workspaceID, userID).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(uuid.New().String(), workspaceID.String(), userID.String(), "admin", time.Now()))

		m, err := store.GetMembership(ctx, workspaceID, userID)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleAdmin, m.Role)
		assert.Equal(t, workspaceID, m.WorkspaceID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null role", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(`FROM memberships`).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(uuid.New().String(), workspaceID.String(), userID.String(), nil, time.Now()))

		m, err := store.GetMembership(ctx, workspaceID, userID)
		require.NoError(t, err)
		assert.Equal(t, rbac.Role(""), m.Role)
	})

	t.Run("unknown role", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(`FROM memberships`).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(uuid.New().String(), workspaceID.String(), userID.String(), "billing_admin", time.Now()))

		m, err := store.GetMembership(ctx, workspaceID, userID)
		require.NoError(t, err)
		assert.False(t, m.Role.Valid())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(`FROM memberships`).WillReturnError(sql.ErrNoRows)

		_, err := store.GetMembership(ctx, workspaceID, userID)
		assert.ErrorIs(t, err, ErrNotAMember)
	})
}

func TestListMembers(t *testing.T) {
	store, mock, _ := newMockStore(t)
	workspaceID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "workspace_id", "user_id", "role", "created_at", "email", "name"}).
		AddRow(uuid.New().String(), workspaceID.String(), uuid.New().String(), "owner", now, "owner@example.com", "Owner").
		AddRow(uuid.New().String(), workspaceID.String(), uuid.New().String(), "member", now, "m@example.com", nil)
	mock.ExpectQuery(`FROM memberships m\s+JOIN users u`).WithArgs(workspaceID).WillReturnRows(rows)

	members, err := store.ListMembers(context.Background(), workspaceID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, rbac.RoleOwner, members[0].Role)
	assert.Equal(t, "Owner", members[0].Name)
	assert.Equal(t, "", members[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMember(t *testing.T) {
	ctx := context.Background()
	workspaceID, userID := uuid.New(), uuid.New()

	t.Run("success", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO memberships`).
			WithArgs(sqlmock.AnyArg(), workspaceID, userID, rbac.RoleMember).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		m, err := store.AddMember(ctx, workspaceID, userID, rbac.RoleMember)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleMember, m.Role)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already member", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO memberships`).WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

		_, err := store.AddMember(ctx, workspaceID, userID, rbac.RoleAdmin)
		assert.ErrorIs(t, err, ErrAlreadyMember)
	})

	t.Run("cannot add a second owner", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		_, err := store.AddMember(ctx, workspaceID, userID, rbac.RoleOwner)
		assert.ErrorIs(t, err, ErrOwnerInvariant)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid role", func(t *testing.T) {
		store, _, _ := newMockStore(t)
		_, err := store.AddMember(ctx, workspaceID, userID, rbac.Role("viewer"))
		assert.ErrorIs(t, err, ErrInvalidRole)
	})
}

func TestUpdateMemberRole(t *testing.T) {
	ctx := context.Background()
	workspaceID, userID := uuid.New(), uuid.New()
	cols := []string{"id", "workspace_id", "user_id", "role", "created_at"}

	t.Run("success", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectExec(`UPDATE memberships SET role = \$1`).
			WithArgs(rbac.RoleAdmin, workspaceID, userID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateMemberRole(ctx, workspaceID, userID, rbac.RoleAdmin))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("promotion to owner refused", func(t *testing.T) {
		store, _, _ := newMockStore(t)
		assert.ErrorIs(t, store.UpdateMemberRole(ctx, workspaceID, userID, rbac.RoleOwner), ErrOwnerInvariant)
	})

	t.Run("owner cannot be demoted", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectExec(`UPDATE memberships`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM memberships`).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(uuid.New().String(), workspaceID.String(), userID.String(), "owner", time.Now()))

		assert.ErrorIs(t, store.UpdateMemberRole(ctx, workspaceID, userID, rbac.RoleMember), ErrOwnerInvariant)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not a member", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectExec(`UPDATE memberships`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM memberships`).WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, store.UpdateMemberRole(ctx, workspaceID, userID, rbac.RoleMember), ErrNotAMember)
	})
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	workspaceID, userID := uuid.New(), uuid.New()
	cols := []string{"id", "workspace_id", "user_id", "role", "created_at"}

	t.Run("success", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectExec(`DELETE FROM memberships`).
			WithArgs(workspaceID, userID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.RemoveMember(ctx, workspaceID, userID))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner cannot be removed", func(t *testing.T) {
		store, mock, _ := newMockStore(t)
		mock.ExpectExec(`DELETE FROM memberships`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM memberships`).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(uuid.New().String(), workspaceID.String(), userID.String(), "owner", time.Now()))

		assert.ErrorIs(t, store.RemoveMember(ctx, workspaceID, userID), ErrOwnerInvariant)
	})
}

func TestGenerateSlug(t *testing.T) {
	assert.Equal(t, "acme-corp", generateSlug("Acme Corp"))
	assert.Equal(t, "rd-2024", generateSlug(" R&D 2024 "))
	assert.Equal(t, "", generateSlug("!!!"))
}
