// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// Every error response has the same JSON shape:
//
//	{"error": "forbidden", "message": "permission denied", "reason": "permission_denied"}
//
// error is a stable machine-readable code, message is for humans, and
// reason is an optional qualifier (for example why a workspace could not be
// resolved).
//
// # Error mapping
//
// Handlers return domain errors and let an ErrorMapper choose the response:
//
//	mapper := httputil.NewErrorMapper(
//		httputil.ErrorMapping{Target: tenancy.ErrTenantMismatch, Status: http.StatusForbidden, Code: httputil.CodeTenantMismatch},
//	)
//	mapper.Write(w, r, err)
//
// A *ValidationError always maps to 400. Anything unmapped is logged and
// answered with an opaque 500 so query text and internals never reach the
// client.
//
// # Request Parsing
//
//	var req CreateKPIRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, ok := httputil.ParsePathUUIDOrError(w, r, "kpiId")
package httputil
