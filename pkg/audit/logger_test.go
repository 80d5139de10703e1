package audit

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLogger collects events for assertions
type memoryLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
	err    error
	closed bool
}

func (m *memoryLogger) Log(_ context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *memoryLogger) Close() error {
	m.closed = true
	return nil
}

func (m *memoryLogger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestFromContext_DefaultsToNoOp(t *testing.T) {
	logger := FromContext(context.Background())
	assert.NoError(t, logger.Log(context.Background(), &AuditEvent{}))
	assert.NoError(t, LogSuccess(context.Background(), EventTypeKPICreate, ResourceTypeKPI, "k", nil))
}

func TestLogSuccess_UsesRequestContext(t *testing.T) {
	mem := &memoryLogger{}
	actor, workspace := uuid.New(), uuid.New()

	ctx := WithLogger(context.Background(), mem)
	ctx = contextkeys.WithUserID(ctx, actor.String())
	ctx = contextkeys.WithWorkspaceID(ctx, workspace.String())
	ctx = contextkeys.WithRequestID(ctx, "req-1")

	require.NoError(t, LogSuccess(ctx, EventTypeKPICreate, ResourceTypeKPI, "kpi-1", map[string]interface{}{"name": "ARR"}))
	require.Len(t, mem.events, 1)

	event := mem.events[0]
	assert.Equal(t, EventTypeKPICreate, event.EventType)
	assert.Equal(t, EventStatusSuccess, event.Status)
	assert.Equal(t, actor, *event.ActorID)
	assert.Equal(t, workspace, *event.WorkspaceID)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, "ARR", event.Metadata["name"])
}

func TestLogDenied(t *testing.T) {
	mem := &memoryLogger{}
	workspace := uuid.New()
	ctx := WithLogger(context.Background(), mem)
	require.NoError(t, LogDenied(ctx, EventTypeAccessDenied, "POST", "/api/workspaces/x/kpis", workspace, "permission_denied"))
	event := mem.events[0]
	assert.Equal(t, EventStatusDenied, event.Status)
	assert.Equal(t, "POST", event.Method)
	assert.Equal(t, "/api/workspaces/x/kpis", event.Path)
	assert.Equal(t, workspace, *event.WorkspaceID)
	assert.Nil(t, event.ActorID)
	assert.Equal(t, "permission_denied", event.Metadata["reason"])

	require.NoError(t, LogDenied(ctx, EventTypeAccessMisconfigured, "GET", "/dashboard", uuid.Nil, "role_missing"))
	assert.Nil(t, mem.events[1].WorkspaceID)
}

func TestMiddleware_InstallsLogger(t *testing.T) {
	mem := &memoryLogger{}
	handler := NewMiddleware(mem).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = LogSuccess(r.Context(), EventTypeWorkspaceCreate, ResourceTypeWorkspace, "w", nil)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/workspaces", nil))
	assert.Equal(t, 1, mem.count())
}

func TestMultiLogger_Sync(t *testing.T) {
	failing := &memoryLogger{err: errors.New("disk full")}
	ok := &memoryLogger{}
	multi := NewMultiLogger(failing, ok)

	err := multi.Log(context.Background(), &AuditEvent{EventType: EventTypeKPIDelete})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, ok.count(), "later sinks still receive the event")

	require.NoError(t, multi.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestMultiLogger_Async(t *testing.T) {
	failing := &memoryLogger{err: errors.New("timeout")}
	ok := &memoryLogger{}
	multi := NewMultiLogger(failing, ok)
	multi.SetAsync(true)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, multi.Log(ctx, &AuditEvent{EventType: EventTypeKPIDelete}))
	cancel()
	multi.Wait()

	assert.Equal(t, 1, ok.count())
	errs := multi.GetErrors()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "timeout")
}

func TestLogLogger(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogLogger(observability.NewLogger(observability.InfoLevel, &buf))
	actor := uuid.New()

	err := sink.Log(context.Background(), &AuditEvent{
		EventType:    EventTypeMemberRoleChange,
		Status:       EventStatusSuccess,
		ActorID:      &actor,
		ResourceType: ResourceTypeMembership,
		ResourceID:   "m-1",
		Metadata:     map[string]interface{}{"new_role": "admin", "status": "ignored"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"event_type":"member.role_change"`)
	assert.Contains(t, out, `"status":"success"`)
	assert.Contains(t, out, actor.String())
	assert.Contains(t, out, `"new_role":"admin"`)
	assert.NoError(t, sink.Close())
}
