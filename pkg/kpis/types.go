package kpis

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// ErrKPINotFound is returned when a KPI does not exist in the bound workspace
var ErrKPINotFound = errors.New("kpi not found")

// KPI is a workspace-owned metric with a target
type KPI struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
	Target      float64   `json:"target"`
	Current     float64   `json:"current"`
	Unit        string    `json:"unit,omitempty"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateKPIRequest is the body of a create call
type CreateKPIRequest struct {
	Name    string  `json:"name"`
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
	Unit    string  `json:"unit"`
}

// Validate checks the request shape
func (r CreateKPIRequest) Validate() error {
	return httputil.ValidateAll(
		httputil.RequireNonEmpty(r.Name, "name"),
		maxLength(r.Name, "name", maxNameLength),
		maxLength(r.Unit, "unit", maxUnitLength),
	)
}

// UpdateKPIRequest is a partial update; nil fields are left unchanged
type UpdateKPIRequest struct {
	Name    *string  `json:"name,omitempty"`
	Target  *float64 `json:"target,omitempty"`
	Current *float64 `json:"current,omitempty"`
	Unit    *string  `json:"unit,omitempty"`
}

// Validate checks the request shape
func (r UpdateKPIRequest) Validate() error {
	if r.Name == nil && r.Target == nil && r.Current == nil && r.Unit == nil {
		return &httputil.ValidationError{Message: "at least one field is required"}
	}
	var errs []error
	if r.Name != nil {
		errs = append(errs, httputil.RequireNonEmpty(*r.Name, "name"), maxLength(*r.Name, "name", maxNameLength))
	}
	if r.Unit != nil {
		errs = append(errs, maxLength(*r.Unit, "unit", maxUnitLength))
	}
	return httputil.ValidateAll(errs...)
}

// apply merges the update into k
func (r UpdateKPIRequest) apply(k *KPI) {
	if r.Name != nil {
		k.Name = *r.Name
	}
	if r.Target != nil {
		k.Target = *r.Target
	}
	if r.Current != nil {
		k.Current = *r.Current
	}
	if r.Unit != nil {
		k.Unit = *r.Unit
	}
}

const (
	maxNameLength = 200
	maxUnitLength = 32
)

func maxLength(value, field string, limit int) error {
	if len(value) > limit {
		return &httputil.ValidationError{Field: field, Message: "is too long"}
	}
	return nil
}
