package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// AuditHandlers serves a workspace's audit trail to its owner
type AuditHandlers struct {
	searcher AuditSearcher
}

func newAuditHandlers(searcher AuditSearcher) *AuditHandlers {
	return &AuditHandlers{searcher: searcher}
}

// RegisterRoutes mounts the audit route when a searchable store is configured
func (h *AuditHandlers) RegisterRoutes(router *mux.Router, routes *guard.RouteTable) error {
	if h.searcher == nil {
		return nil
	}
	path := workspacePath + "/audit"
	err := routes.Add(guard.Rule{
		Path:       path,
		Methods:    []string{http.MethodGet},
		Kind:       guard.RouteWorkspace,
		API:        true,
		Permission: rbac.PermWorkspaceManage,
	})
	if err != nil {
		return err
	}
	router.HandleFunc(path, h.SearchEvents).Methods(http.MethodGet)
	return nil
}

// SearchEvents returns the newest events first. Query parameters:
// event_type, before (RFC 3339) and limit.
func (h *AuditHandlers) SearchEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := requireWorkspacePrincipal(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	filter := audit.SearchFilter{
		EventType: audit.EventType(query.Get("event_type")),
		Limit:     limit,
	}
	if raw := query.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteValidationError(w, "before: must be an RFC 3339 timestamp")
			return
		}
		filter.Before = &before
	}

	events, err := h.searcher.Search(r.Context(), p.UserID, p.WorkspaceID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"events": events})
}
