package httputil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// ValidationError reports a malformed request shape
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ErrorMapping binds a sentinel error to the response it produces
type ErrorMapping struct {
	Target  error
	Status  int
	Code    string
	Message string
}

// ErrorMapper turns service errors into responses. Errors it does not
// recognize become an opaque 500 and are logged with full detail.
type ErrorMapper struct {
	mappings []ErrorMapping
}

// NewErrorMapper creates a mapper; the first matching mapping wins
func NewErrorMapper(mappings ...ErrorMapping) *ErrorMapper {
	return &ErrorMapper{mappings: mappings}
}

// Status returns the status and code for err
func (m *ErrorMapper) Status(err error) (int, string) {
	if IsValidationError(err) {
		return http.StatusBadRequest, CodeValidation
	}
	for _, mapping := range m.mappings {
		if errors.Is(err, mapping.Target) {
			return mapping.Status, mapping.Code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// Write writes the response for err
func (m *ErrorMapper) Write(w http.ResponseWriter, r *http.Request, err error) {
	if IsValidationError(err) {
		WriteValidationError(w, err.Error())
		return
	}
	for _, mapping := range m.mappings {
		if errors.Is(err, mapping.Target) {
			message := mapping.Message
			if message == "" {
				message = mapping.Target.Error()
			}
			WriteErrorResponse(w, mapping.Status, mapping.Code, message, "")
			return
		}
	}

	observability.FromContext(r.Context()).
		WithError(err).
		WithField("method", r.Method).
		WithField("path", r.URL.Path).
		Error("Unhandled error serving request")
	WriteInternalError(w)
}
