package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	// Return a no-op logger if none is set
	return noOpLogger{}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *AuditEvent) error { return nil }
func (noOpLogger) Close() error                           { return nil }

// buildBaseEvent creates an event populated from the request context: the
// request id, and the user and workspace the guard resolved
func buildBaseEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if id, err := uuid.Parse(contextkeys.GetUserID(ctx)); err == nil {
		event.ActorID = &id
	}
	if id, err := uuid.Parse(contextkeys.GetWorkspaceID(ctx)); err == nil {
		event.WorkspaceID = &id
	}

	if r != nil {
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}

// LogSuccess records a successful mutation of a workspace resource
func LogSuccess(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, metadata map[string]interface{}) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	if metadata != nil {
		event.Metadata = metadata
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogDenied records a refused request. workspaceID may be uuid.Nil when the
// denial happened before a workspace was known.
func LogDenied(ctx context.Context, eventType EventType, method, path string, workspaceID uuid.UUID, reason string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusDenied)
	event.Method = method
	event.Path = path
	event.ResourceType = ResourceTypeRoute
	if workspaceID != uuid.Nil {
		event.WorkspaceID = &workspaceID
	}
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	event.Metadata["reason"] = reason
	return FromContext(ctx).Log(ctx, event)
}
