// Package guard decides whether a request may proceed and enforces it.
//
// # Classification
//
// A RouteTable maps method and path to a Rule. Rules are evaluated in order
// and the first match wins:
//
//   - public routes are allowed without looking at the credential
//   - protected routes need a valid credential
//   - workspace routes need a valid credential, a workspace and a role, and
//     for API routes an explicitly declared Permission
//
// Unmatched paths are treated as protected. Workspace API routes are
// registered by the handlers that serve them, so the handler is the one
// declaring which permission an operation needs:
//
//	routes.Add(guard.Rule{
//		Path:       "/api/workspaces/{workspaceId}/kpis",
//		Methods:    []string{http.MethodPost},
//		Kind:       guard.RouteWorkspace,
//		API:        true,
//		Permission: rbac.PermKPICreate,
//	})
//
// # Decisions
//
// Evaluate produces exactly one Outcome:
//
//	no or invalid credential              Unauthenticated  401 / redirect to sign-in
//	no workspace claim or path workspace  NeedsWorkspace   403 / redirect to onboarding
//	workspace claim without role claim    Misconfigured    403 / redirect to error page
//	not a member, or claim != membership  Misconfigured    403 / redirect to error page
//	role lacks the permission             Forbidden        403 / redirect to error page
//	otherwise                             Allowed
//
// Workspace and role claims on a token are hints. Privileged permissions,
// requests for a workspace other than the claimed one and, unless strict
// membership is turned off, every workspace request re-read the role from
// the membership table. Misconfigured outcomes are logged as security
// events and never repaired.
//
// # Enforcement
//
// Middleware strips inbound X-User-Id, X-Workspace-Id and X-User-Role
// headers, evaluates the request, and on Allowed re-injects trusted values
// and stores the Principal in the context:
//
//	principal, ok := guard.PrincipalFrom(r.Context())
//
// Downstream handlers must use the principal and must not re-derive
// authorization.
package guard
