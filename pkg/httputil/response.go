package httputil

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes carried in the "error" field
const (
	CodeValidation      = "validation_error"
	CodeUnauthenticated = "unauthenticated"
	CodeNeedsWorkspace  = "needs_workspace"
	CodeMisconfigured   = "misconfigured"
	CodeForbidden       = "forbidden"
	CodeTenantMismatch  = "tenant_mismatch"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal_error"
)

// ErrorResponse is the JSON body of every error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes a JSON error body
func WriteErrorResponse(w http.ResponseWriter, status int, code, message, reason string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Reason:  reason,
	})
}

// WriteValidationError writes a validation error response (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, CodeValidation, message, "")
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusNotFound, CodeNotFound, message, "")
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusConflict, CodeConflict, message, "")
}

// WriteUnauthorized writes an unauthenticated error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusUnauthorized, CodeUnauthenticated, message, "")
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusForbidden, CodeForbidden, message, "")
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusTooManyRequests, CodeRateLimited, message, "")
}

// WriteInternalError writes an opaque 500. Detail belongs in the server log,
// never in the response.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, CodeInternal, "an internal error occurred", "")
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
