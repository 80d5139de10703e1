// Package kpis is the reference tenant-data module: a small CRUD API over
// workspace-owned KPIs that shows how business handlers sit behind the guard.
//
// Handlers declare the permission each route needs through RegisterRoutes,
// read the workspace from the guard's Principal rather than from the request,
// and reach the database only through tenancy.Binder:
//
//	store := kpis.NewStore(binder)
//	if err := kpis.NewHandlers(store).RegisterRoutes(router, routes); err != nil {
//		return err
//	}
//
// Rows fetched by id are checked with tenancy.EnsureSameTenant. A mismatch
// becomes a 403 tenant_mismatch response and an access.tenant_mismatch audit
// event.
package kpis
