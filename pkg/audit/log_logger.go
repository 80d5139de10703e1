package audit

import (
	"context"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// LogLogger writes audit events to the structured application log. It is
// the sink used when no database trail is configured.
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates an audit logger backed by logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger}
}

// Log implements Logger
func (l *LogLogger) Log(_ context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"audit":      true,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.ActorID != nil {
		fields["actor_id"] = event.ActorID.String()
	}
	if event.WorkspaceID != nil {
		fields["workspace_id"] = event.WorkspaceID.String()
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}

	message := event.Message
	if message == "" {
		message = string(event.EventType)
	}
	l.logger.WithFields(fields).Info(message)
	return nil
}

// Close implements Logger
func (l *LogLogger) Close() error {
	return nil
}
