package kpis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

// Lookups by id are not filtered on workspace_id. Row-level security narrows
// them to the bound workspace and EnsureSameTenant rejects any other row.
const (
	kpiColumns = `id, workspace_id, name, target, current, unit, created_by, created_at, updated_at`

	listQuery = `SELECT ` + kpiColumns + ` FROM kpis WHERE workspace_id = $1 ORDER BY created_at ASC, id ASC`

	getQuery = `SELECT ` + kpiColumns + ` FROM kpis WHERE id = $1`

	insertQuery = `
		INSERT INTO kpis (id, workspace_id, name, target, current, unit, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + kpiColumns

	updateQuery = `
		UPDATE kpis SET name = $3, target = $4, current = $5, unit = $6, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
		RETURNING ` + kpiColumns

	deleteQuery = `DELETE FROM kpis WHERE id = $1 AND workspace_id = $2`
)

// Store persists KPIs. Every call runs on a connection bound to the caller's
// user and workspace.
type Store struct {
	binder *tenancy.Binder
}

// NewStore creates a KPI store
func NewStore(binder *tenancy.Binder) *Store {
	return &Store{binder: binder}
}

// List returns the workspace's KPIs
func (s *Store) List(ctx context.Context, userID, workspaceID uuid.UUID) ([]*KPI, error) {
	out := []*KPI{}
	err := s.binder.WithWorkspaceContext(ctx, userID, workspaceID, func(ctx context.Context, conn tenancy.Conn) error {
		rows, err := conn.Query(ctx, listQuery, workspaceID)
		if err != nil {
			return fmt.Errorf("failed to list kpis: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			k, err := scanKPI(rows)
			if err != nil {
				return fmt.Errorf("failed to scan kpi: %w", err)
			}
			if err := tenancy.EnsureSameTenant(ctx, k.WorkspaceID); err != nil {
				return err
			}
			out = append(out, k)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one KPI
func (s *Store) Get(ctx context.Context, userID, workspaceID, id uuid.UUID) (*KPI, error) {
	var k *KPI
	err := s.binder.WithWorkspaceContext(ctx, userID, workspaceID, func(ctx context.Context, conn tenancy.Conn) error {
		var err error
		k, err = fetch(ctx, conn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return k, nil
}

// Create inserts a KPI owned by the bound workspace
func (s *Store) Create(ctx context.Context, userID, workspaceID uuid.UUID, req CreateKPIRequest) (*KPI, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var k *KPI
	err := s.binder.WithWorkspaceContext(ctx, userID, workspaceID, func(ctx context.Context, conn tenancy.Conn) error {
		row := conn.QueryRow(ctx, insertQuery, uuid.New(), workspaceID, req.Name, req.Target, req.Current, req.Unit, userID)
		var err error
		if k, err = scanKPI(row); err != nil {
			return fmt.Errorf("failed to create kpi: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return k, nil
}

// Update applies a partial update and returns the stored KPI
func (s *Store) Update(ctx context.Context, userID, workspaceID, id uuid.UUID, req UpdateKPIRequest) (*KPI, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var k *KPI
	err := s.binder.WithWorkspaceContext(ctx, userID, workspaceID, func(ctx context.Context, conn tenancy.Conn) error {
		current, err := fetch(ctx, conn, id)
		if err != nil {
			return err
		}
		req.apply(current)

		row := conn.QueryRow(ctx, updateQuery, id, workspaceID, current.Name, current.Target, current.Current, current.Unit)
		k, err = scanKPI(row)
		if errors.Is(err, tenancy.ErrNoRows) {
			return ErrKPINotFound
		}
		if err != nil {
			return fmt.Errorf("failed to update kpi: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return k, nil
}

// Delete removes a KPI
func (s *Store) Delete(ctx context.Context, userID, workspaceID, id uuid.UUID) error {
	return s.binder.WithWorkspaceContext(ctx, userID, workspaceID, func(ctx context.Context, conn tenancy.Conn) error {
		if _, err := fetch(ctx, conn, id); err != nil {
			return err
		}
		if err := conn.Exec(ctx, deleteQuery, id, workspaceID); err != nil {
			return fmt.Errorf("failed to delete kpi: %w", err)
		}
		return nil
	})
}

// fetch loads a KPI by id and checks it belongs to the bound workspace
func fetch(ctx context.Context, conn tenancy.Conn, id uuid.UUID) (*KPI, error) {
	k, err := scanKPI(conn.QueryRow(ctx, getQuery, id))
	if errors.Is(err, tenancy.ErrNoRows) {
		return nil, ErrKPINotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kpi: %w", err)
	}
	if err := tenancy.EnsureSameTenant(ctx, k.WorkspaceID); err != nil {
		return nil, err
	}
	return k, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKPI(row scanner) (*KPI, error) {
	k := &KPI{}
	err := row.Scan(&k.ID, &k.WorkspaceID, &k.Name, &k.Target, &k.Current, &k.Unit, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}
