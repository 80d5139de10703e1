package kpis

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

const (
	collectionPath = "/api/workspaces/{" + guard.WorkspaceVar + "}/kpis"
	itemPath       = collectionPath + "/{kpiId}"
)

// Service is the KPI storage the handlers need
type Service interface {
	List(ctx context.Context, userID, workspaceID uuid.UUID) ([]*KPI, error)
	Get(ctx context.Context, userID, workspaceID, id uuid.UUID) (*KPI, error)
	Create(ctx context.Context, userID, workspaceID uuid.UUID, req CreateKPIRequest) (*KPI, error)
	Update(ctx context.Context, userID, workspaceID, id uuid.UUID, req UpdateKPIRequest) (*KPI, error)
	Delete(ctx context.Context, userID, workspaceID, id uuid.UUID) error
}

// Handlers serves the KPI API
type Handlers struct {
	service Service
	errors  *httputil.ErrorMapper
}

// NewHandlers creates KPI handlers
func NewHandlers(service Service) *Handlers {
	return &Handlers{
		service: service,
		errors: httputil.NewErrorMapper(
			httputil.ErrorMapping{Target: ErrKPINotFound, Status: http.StatusNotFound, Code: httputil.CodeNotFound},
			httputil.ErrorMapping{
				Target:  tenancy.ErrTenantMismatch,
				Status:  http.StatusForbidden,
				Code:    httputil.CodeTenantMismatch,
				Message: "resource is not available in this workspace",
			},
		),
	}
}

// RegisterRoutes mounts the KPI routes on router and declares the permission
// each one requires in the guard's route table
func (h *Handlers) RegisterRoutes(router *mux.Router, routes *guard.RouteTable) error {
	endpoints := []struct {
		path       string
		method     string
		permission rbac.Permission
		handler    http.HandlerFunc
	}{
		{collectionPath, http.MethodGet, rbac.PermKPIView, h.ListKPIs},
		{collectionPath, http.MethodPost, rbac.PermKPICreate, h.CreateKPI},
		{itemPath, http.MethodGet, rbac.PermKPIView, h.GetKPI},
		{itemPath, http.MethodPatch, rbac.PermKPIEdit, h.UpdateKPI},
		{itemPath, http.MethodDelete, rbac.PermKPIDelete, h.DeleteKPI},
	}

	for _, e := range endpoints {
		rule := guard.Rule{
			Path:       e.path,
			Methods:    []string{e.method},
			Kind:       guard.RouteWorkspace,
			API:        true,
			Permission: e.permission,
		}
		if err := routes.Add(rule); err != nil {
			return err
		}
		router.HandleFunc(e.path, e.handler).Methods(e.method)
	}
	return nil
}

// ListKPIs lists the workspace's KPIs
func (h *Handlers) ListKPIs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), p.UserID, p.WorkspaceID)
	if err != nil {
		h.writeError(w, r, p, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"kpis": items})
}

// GetKPI returns one KPI
func (h *Handlers) GetKPI(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "kpiId")
	if !ok {
		return
	}

	k, err := h.service.Get(r.Context(), p.UserID, p.WorkspaceID, id)
	if err != nil {
		h.writeError(w, r, p, err)
		return
	}
	httputil.WriteSuccess(w, k)
}

// CreateKPI creates a KPI
func (h *Handlers) CreateKPI(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req CreateKPIRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	k, err := h.service.Create(r.Context(), p.UserID, p.WorkspaceID, req)
	if err != nil {
		h.writeError(w, r, p, err)
		return
	}

	h.recordSuccess(r, audit.EventTypeKPICreate, k.ID, map[string]interface{}{"name": k.Name})
	httputil.WriteCreated(w, k)
}

// UpdateKPI applies a partial update
func (h *Handlers) UpdateKPI(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "kpiId")
	if !ok {
		return
	}
	var req UpdateKPIRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	k, err := h.service.Update(r.Context(), p.UserID, p.WorkspaceID, id, req)
	if err != nil {
		h.writeError(w, r, p, err)
		return
	}

	h.recordSuccess(r, audit.EventTypeKPIUpdate, k.ID, nil)
	httputil.WriteSuccess(w, k)
}

// DeleteKPI removes a KPI
func (h *Handlers) DeleteKPI(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "kpiId")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), p.UserID, p.WorkspaceID, id); err != nil {
		h.writeError(w, r, p, err)
		return
	}

	h.recordSuccess(r, audit.EventTypeKPIDelete, id, nil)
	httputil.WriteNoContent(w)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, p *guard.Principal, err error) {
	if errors.Is(err, tenancy.ErrTenantMismatch) {
		if auditErr := audit.LogDenied(r.Context(), audit.EventTypeTenantMismatch, r.Method, r.URL.Path, p.WorkspaceID, "tenant_mismatch"); auditErr != nil {
			observability.FromContext(r.Context()).WithError(auditErr).Warn("Failed to record audit event")
		}
	}
	h.errors.Write(w, r, err)
}

func (h *Handlers) recordSuccess(r *http.Request, eventType audit.EventType, id uuid.UUID, metadata map[string]interface{}) {
	if err := audit.LogSuccess(r.Context(), eventType, audit.ResourceTypeKPI, id.String(), metadata); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Failed to record audit event")
	}
}

// principal returns the guard-resolved principal. The routes are declared
// as workspace routes, so reaching a handler without one is a wiring bug.
func principal(w http.ResponseWriter, r *http.Request) (*guard.Principal, bool) {
	p, ok := guard.PrincipalFrom(r.Context())
	if !ok || !p.HasWorkspace() {
		observability.FromContext(r.Context()).Error("KPI handler reached without a workspace principal")
		httputil.WriteInternalError(w)
		return nil, false
	}
	return p, true
}
