// Package api is the tenantgate HTTP API.
//
// Every request passes through one chain before it reaches a handler:
//
//	RequestID -> RequestLogger -> Recovery -> audit -> guard -> router
//
// The guard classifies the request against the route table, validates the
// credential and resolves the workspace role. Handlers never read identity
// from headers or bodies; they take it from guard.PrincipalFrom.
//
// Each handler group declares the permission of its workspace routes when
// it is registered, so a route and its permission cannot drift apart:
//
//	GET    /api/me                                         protected
//	GET    /api/workspaces                                 protected
//	POST   /api/workspaces                                 protected
//	POST   /api/workspaces/switch                          protected, rate limited
//	POST   /api/invitations/accept                         protected, rate limited
//	GET    /api/workspaces/{workspaceId}/members           member:invite
//	PATCH  /api/workspaces/{workspaceId}/members/{userId}  member:update_role
//	DELETE /api/workspaces/{workspaceId}/members/{userId}  member:remove
//	GET    /api/workspaces/{workspaceId}/invitations       member:invite
//	POST   /api/workspaces/{workspaceId}/invitations       member:invite
//	DELETE /api/workspaces/{workspaceId}/invitations/{id}  member:invite
//	GET    /api/workspaces/{workspaceId}/audit             workspace:manage
//	*      /api/workspaces/{workspaceId}/kpis...           kpi:*
//
// Usage:
//
//	server, err := api.NewServer(api.Dependencies{...})
//	http.ListenAndServe(":8080", server)
package api
