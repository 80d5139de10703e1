package kpis

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kpiRowColumns = []string{"id", "workspace_id", "name", "target", "current", "unit", "created_by", "created_at", "updated_at"}

// newMockStore creates a Store whose binder runs over sqlmock
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	binder, err := tenancy.NewBinder(tenancy.NewSQLPool(db), observability.NewLogger(observability.ErrorLevel, io.Discard))
	require.NoError(t, err)
	return NewStore(binder), mock
}

func expectBind(mock sqlmock.Sqlmock, userID, workspaceID uuid.UUID) {
	mock.ExpectExec(`set_config\('app.current_user_id', \$1`).
		WithArgs(userID.String(), workspaceID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET ROLE "tenantgate_tenant"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectClear(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`RESET ROLE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`set_config\('app.current_user_id', ''`).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func kpiRow(id, workspaceID, createdBy uuid.UUID, name string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(kpiRowColumns).
		AddRow(id.String(), workspaceID.String(), name, 100.0, 42.0, "%", createdBy.String(), now, now)
}

func TestStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	user, workspace := uuid.New(), uuid.New()
	first, second := uuid.New(), uuid.New()
	now := time.Now()

	expectBind(mock, user, workspace)
	mock.ExpectQuery(`FROM kpis WHERE workspace_id = \$1`).
		WithArgs(workspace).
		WillReturnRows(sqlmock.NewRows(kpiRowColumns).
			AddRow(first.String(), workspace.String(), "NPS", 50.0, 31.0, "", user.String(), now, now).
			AddRow(second.String(), workspace.String(), "ARR", 1e6, 7.5e5, "USD", user.String(), now, now))
	expectClear(mock)

	items, err := store.List(context.Background(), user, workspace)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first, items[0].ID)
	assert.Equal(t, "USD", items[1].Unit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListEmptyIsNotNil(t *testing.T) {
	store, mock := newMockStore(t)
	user, workspace := uuid.New(), uuid.New()

	expectBind(mock, user, workspace)
	mock.ExpectQuery(`FROM kpis`).WillReturnRows(sqlmock.NewRows(kpiRowColumns))
	expectClear(mock)

	items, err := store.List(context.Background(), user, workspace)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestStore_ListRejectsForeignRows(t *testing.T) {
	store, mock := newMockStore(t)
	user, workspace, other := uuid.New(), uuid.New(), uuid.New()

	expectBind(mock, user, workspace)
	mock.ExpectQuery(`FROM kpis`).WillReturnRows(kpiRow(uuid.New(), other, user, "leaked"))
	expectClear(mock)

	items, err := store.List(context.Background(), user, workspace)
	assert.ErrorIs(t, err, tenancy.ErrTenantMismatch)
	assert.Nil(t, items)
}

func TestStore_Get(t *testing.T) {
	user, workspace, id := uuid.New(), uuid.New(), uuid.New()

	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`FROM kpis WHERE id = \$1`).WithArgs(id).WillReturnRows(kpiRow(id, workspace, user, "NPS"))
		expectClear(mock)

		k, err := store.Get(context.Background(), user, workspace, id)
		require.NoError(t, err)
		assert.Equal(t, "NPS", k.Name)
		assert.Equal(t, workspace, k.WorkspaceID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`FROM kpis WHERE id = \$1`).WillReturnError(sql.ErrNoRows)
		expectClear(mock)

		_, err := store.Get(context.Background(), user, workspace, id)
		assert.ErrorIs(t, err, ErrKPINotFound)
	})

	t.Run("row from another workspace", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`FROM kpis WHERE id = \$1`).WillReturnRows(kpiRow(id, uuid.New(), user, "foreign"))
		expectClear(mock)

		_, err := store.Get(context.Background(), user, workspace, id)
		assert.ErrorIs(t, err, tenancy.ErrTenantMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Create(t *testing.T) {
	user, workspace := uuid.New(), uuid.New()

	t.Run("inserts into the bound workspace", func(t *testing.T) {
		store, mock := newMockStore(t)
		id := uuid.New()
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`INSERT INTO kpis`).
			WithArgs(sqlmock.AnyArg(), workspace, "NPS", 100.0, 42.0, "%", user).
			WillReturnRows(kpiRow(id, workspace, user, "NPS"))
		expectClear(mock)

		k, err := store.Create(context.Background(), user, workspace, CreateKPIRequest{Name: "NPS", Target: 100, Current: 42, Unit: "%"})
		require.NoError(t, err)
		assert.Equal(t, id, k.ID)
		assert.Equal(t, user, k.CreatedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validates before touching the database", func(t *testing.T) {
		store, mock := newMockStore(t)
		_, err := store.Create(context.Background(), user, workspace, CreateKPIRequest{})
		assert.True(t, httputil.IsValidationError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Update(t *testing.T) {
	user, workspace, id := uuid.New(), uuid.New(), uuid.New()
	current := 55.0

	t.Run("merges the partial update", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`FROM kpis WHERE id = \$1`).WithArgs(id).WillReturnRows(kpiRow(id, workspace, user, "NPS"))
		mock.ExpectQuery(`UPDATE kpis`).
			WithArgs(id, workspace, "NPS", 100.0, 55.0, "%").
			WillReturnRows(sqlmock.NewRows(kpiRowColumns).
				AddRow(id.String(), workspace.String(), "NPS", 100.0, 55.0, "%", user.String(), time.Now(), time.Now()))
		expectClear(mock)

		k, err := store.Update(context.Background(), user, workspace, id, UpdateKPIRequest{Current: &current})
		require.NoError(t, err)
		assert.Equal(t, 55.0, k.Current)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never updates a foreign row", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`FROM kpis WHERE id = \$1`).WillReturnRows(kpiRow(id, uuid.New(), user, "foreign"))
		expectClear(mock)

		_, err := store.Update(context.Background(), user, workspace, id, UpdateKPIRequest{Current: &current})
		assert.ErrorIs(t, err, tenancy.ErrTenantMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty update is rejected", func(t *testing.T) {
		store, _ := newMockStore(t)
		_, err := store.Update(context.Background(), user, workspace, id, UpdateKPIRequest{})
		assert.True(t, httputil.IsValidationError(err))
	})
}

func TestStore_Delete(t *testing.T) {
	user, workspace, id := uuid.New(), uuid.New(), uuid.New()

	t.Run("deletes", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`FROM kpis WHERE id = \$1`).WillReturnRows(kpiRow(id, workspace, user, "NPS"))
		mock.ExpectExec(`DELETE FROM kpis`).WithArgs(id, workspace).WillReturnResult(sqlmock.NewResult(0, 1))
		expectClear(mock)

		require.NoError(t, store.Delete(context.Background(), user, workspace, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)
		expectBind(mock, user, workspace)
		mock.ExpectQuery(`FROM kpis WHERE id = \$1`).WillReturnError(sql.ErrNoRows)
		expectClear(mock)

		assert.ErrorIs(t, store.Delete(context.Background(), user, workspace, id), ErrKPINotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateKPIRequest_Validate(t *testing.T) {
	empty := ""
	long := string(make([]byte, maxNameLength+1))
	target := 10.0

	assert.Error(t, UpdateKPIRequest{}.Validate())
	assert.Error(t, UpdateKPIRequest{Name: &empty}.Validate())
	assert.Error(t, UpdateKPIRequest{Name: &long}.Validate())
	assert.NoError(t, UpdateKPIRequest{Target: &target}.Validate())
}
