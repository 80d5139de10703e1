package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Workspace lifecycle
	EventTypeWorkspaceCreate EventType = "workspace.create"
	EventTypeWorkspaceSwitch EventType = "workspace.switch"

	// Membership changes
	EventTypeMemberInvite     EventType = "member.invite"
	EventTypeMemberRoleChange EventType = "member.role_change"
	EventTypeMemberRemove     EventType = "member.remove"
	EventTypeInvitationAccept EventType = "invitation.accept"
	EventTypeInvitationRevoke EventType = "invitation.revoke"

	// Tenant data
	EventTypeKPICreate EventType = "kpi.create"
	EventTypeKPIUpdate EventType = "kpi.update"
	EventTypeKPIDelete EventType = "kpi.delete"

	// Access control
	EventTypeAccessDenied        EventType = "access.denied"
	EventTypeAccessMisconfigured EventType = "access.misconfigured"
	EventTypeTenantMismatch      EventType = "access.tenant_mismatch"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeWorkspace  ResourceType = "workspace"
	ResourceTypeMembership ResourceType = "membership"
	ResourceTypeInvitation ResourceType = "invitation"
	ResourceTypeKPI        ResourceType = "kpi"
	ResourceTypeRoute      ResourceType = "route"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor and tenant
	ActorID     *uuid.UUID `json:"actor_id,omitempty"`
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter narrows a workspace's audit trail
type SearchFilter struct {
	EventType EventType
	Before    *time.Time
	Limit     int
}

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

func (f SearchFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultSearchLimit
	case f.Limit > maxSearchLimit:
		return maxSearchLimit
	default:
		return f.Limit
	}
}
