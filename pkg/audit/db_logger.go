package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

// DBLogger writes audit events to the audit_events table. Writes go through
// the service connection; reads go through a tenant binding so row level
// security limits them to the bound workspace.
type DBLogger struct {
	db     *sql.DB
	binder *tenancy.Binder
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB, binder *tenancy.Binder) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db, binder: binder}, nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			occurred_at, event_type, status,
			actor_id, workspace_id,
			resource_type, resource_id,
			request_id, method, path,
			message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12
		) RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		nullableUUID(event.ActorID), nullableUUID(event.WorkspaceID),
		nullableString(string(event.ResourceType)), nullableString(event.ResourceID),
		nullableString(event.RequestID), nullableString(event.Method), nullableString(event.Path),
		nullableString(event.Message), metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Search returns a workspace's audit trail, newest first, as seen by userID
func (l *DBLogger) Search(ctx context.Context, userID, workspaceID uuid.UUID, filter SearchFilter) ([]*AuditEvent, error) {
	if l.binder == nil {
		return nil, fmt.Errorf("audit search requires a tenant binder")
	}

	var before interface{}
	if filter.Before != nil {
		before = *filter.Before
	}

	var events []*AuditEvent
	err := l.binder.WithWorkspaceContext(ctx, userID, workspaceID, func(ctx context.Context, conn tenancy.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, occurred_at, event_type, status, actor_id, workspace_id,
			       COALESCE(resource_type, ''), COALESCE(resource_id, ''),
			       COALESCE(request_id, ''), COALESCE(method, ''), COALESCE(path, ''),
			       COALESCE(message, ''), metadata
			FROM audit_events
			WHERE workspace_id = $1
			  AND ($2 = '' OR event_type = $2)
			  AND ($3::timestamptz IS NULL OR occurred_at < $3)
			ORDER BY occurred_at DESC, id DESC
			LIMIT $4
		`, workspaceID, string(filter.EventType), before, filter.limit())
		if err != nil {
			return fmt.Errorf("failed to query audit events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			event := &AuditEvent{}
			var actorID, wsID *uuid.UUID
			var metadata []byte
			if err := rows.Scan(
				&event.ID, &event.Timestamp, &event.EventType, &event.Status, &actorID, &wsID,
				&event.ResourceType, &event.ResourceID,
				&event.RequestID, &event.Method, &event.Path,
				&event.Message, &metadata,
			); err != nil {
				return fmt.Errorf("failed to scan audit event: %w", err)
			}
			event.ActorID = actorID
			event.WorkspaceID = wsID
			if len(metadata) > 0 {
				if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
					return fmt.Errorf("failed to unmarshal audit metadata: %w", err)
				}
			}
			events = append(events, event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// Close implements Logger. The database handle is owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
