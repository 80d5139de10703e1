package guard

import (
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// Outcome is the terminal state of an access decision
type Outcome string

const (
	OutcomeAllowed         Outcome = "allowed"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeNeedsWorkspace  Outcome = "needs_workspace"
	OutcomeMisconfigured   Outcome = "misconfigured"
	OutcomeForbidden       Outcome = "forbidden"
	OutcomeInvalid         Outcome = "invalid_request"

	// OutcomeError means the decision could not be made, for example because
	// the session store or membership table was unreachable
	OutcomeError Outcome = "error"
)

// Machine-readable reasons. They appear in denial responses, redirect query
// strings, logs and metric labels.
const (
	ReasonPublicRoute           = "public_route"
	ReasonAuthenticated         = "authenticated"
	ReasonPermissionGranted     = "permission_granted"
	ReasonWorkspaceMember       = "workspace_member"
	ReasonNoCredential          = "no_credential"
	ReasonInvalidCredential     = "invalid_credential"
	ReasonNoWorkspace           = "no_workspace"
	ReasonInvalidWorkspaceID    = "invalid_workspace_id"
	ReasonRoleMissing           = "role_missing"
	ReasonNotAMember            = "not_a_member"
	ReasonRoleClaimMismatch     = "role_claim_mismatch"
	ReasonPermissionNotDeclared = "permission_not_declared"
	ReasonPermissionDenied      = "permission_denied"
	ReasonInternal              = "internal_error"
)

// Decision is the result of evaluating one request
type Decision struct {
	Outcome Outcome
	Reason  string
	Route   Route

	// Principal is set when the request is allowed past a protected route
	Principal *Principal

	// Permission is the permission the route required, if any
	Permission rbac.Permission

	// CallbackURL is the original request target, for sign-in redirects
	CallbackURL string

	// Err holds the underlying failure for OutcomeError
	Err error
}

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// Status returns the HTTP status an API client receives for the decision
func (d Decision) Status() int {
	switch d.Outcome {
	case OutcomeAllowed:
		return http.StatusOK
	case OutcomeUnauthenticated:
		return http.StatusUnauthorized
	case OutcomeNeedsWorkspace, OutcomeMisconfigured, OutcomeForbidden:
		return http.StatusForbidden
	case OutcomeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
