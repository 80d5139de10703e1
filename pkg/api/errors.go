package api

import (
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
	"github.com/platinummonkey/tenantgate/pkg/workspaces"
)

// CodeSessionNotSwitchable is returned when the active workspace of a
// credential cannot be changed server-side
const CodeSessionNotSwitchable = "session_not_switchable"

// errorMapper is shared by every handler in this package
var errorMapper = httputil.NewErrorMapper(
	httputil.ErrorMapping{Target: auth.ErrNotSwitchable, Status: http.StatusBadRequest, Code: CodeSessionNotSwitchable,
		Message: "the active workspace of this session is set by its issuer"},
	httputil.ErrorMapping{Target: workspaces.ErrInvalidRole, Status: http.StatusBadRequest, Code: httputil.CodeValidation},

	httputil.ErrorMapping{Target: workspaces.ErrNotAMember, Status: http.StatusForbidden, Code: httputil.CodeForbidden,
		Message: "not a member of this workspace"},
	httputil.ErrorMapping{Target: workspaces.ErrRoleMissing, Status: http.StatusForbidden, Code: httputil.CodeMisconfigured,
		Message: "membership is misconfigured"},
	httputil.ErrorMapping{Target: tenancy.ErrTenantMismatch, Status: http.StatusForbidden, Code: httputil.CodeTenantMismatch,
		Message: "resource is not available in this workspace"},

	httputil.ErrorMapping{Target: workspaces.ErrWorkspaceNotFound, Status: http.StatusNotFound, Code: httputil.CodeNotFound},
	httputil.ErrorMapping{Target: workspaces.ErrInvitationNotFound, Status: http.StatusNotFound, Code: httputil.CodeNotFound},

	httputil.ErrorMapping{Target: workspaces.ErrOwnerInvariant, Status: http.StatusConflict, Code: httputil.CodeConflict},
	httputil.ErrorMapping{Target: workspaces.ErrAlreadyMember, Status: http.StatusConflict, Code: httputil.CodeConflict},
	httputil.ErrorMapping{Target: workspaces.ErrSlugTaken, Status: http.StatusConflict, Code: httputil.CodeConflict},
	httputil.ErrorMapping{Target: workspaces.ErrInvitationAccepted, Status: http.StatusConflict, Code: httputil.CodeConflict},
	httputil.ErrorMapping{Target: workspaces.ErrInvitationExpired, Status: http.StatusGone, Code: httputil.CodeConflict},
)

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	errorMapper.Write(w, r, err)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteNotFoundError(w, "no such route")
}
