// Package audit records a durable trail of membership changes, tenant data
// mutations and refused requests.
//
// # Overview
//
// Handlers call LogSuccess after a mutation commits; the guard calls
// LogDenied when it refuses a request for a reason other than a missing
// credential. Both read the logger installed by Middleware, falling back to a
// no-op logger, so packages never need a logger handle of their own.
//
// Actor, workspace and request id are taken from the request context that
// the request id middleware and the guard populate.
//
// # Sinks
//
//   - DBLogger: the audit_events table. Reads go through a tenant binding,
//     so row level security confines Search to the bound workspace.
//   - LogLogger: structured log lines tagged audit=true.
//   - MultiLogger: fan-out to several sinks, optionally asynchronous.
//
// # Usage Example
//
//	mw := audit.NewMiddleware(audit.NewMultiLogger(dbLogger, audit.NewLogLogger(logger)))
//	router.Use(mw.Handler)
//
//	audit.LogSuccess(ctx, audit.EventTypeMemberRemove, audit.ResourceTypeMembership,
//		userID.String(), map[string]interface{}{"previous_role": "admin"})
package audit
