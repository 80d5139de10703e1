// Package postgres opens the service's backing stores and owns the schema.
//
// ConnectionManager wraps a database/sql handle (lib/pq) for management
// queries and, optionally, a pgx pool for tenant-bound work. TenantPool
// returns whichever one row-level security bindings should be made on.
//
// Migrations are embedded and applied with golang-migrate. The second
// migration installs the tenantgate_tenant role and the row-level security
// policies keyed on app.current_user_id and app.current_workspace_id; see
// package tenancy for how connections are bound.
//
// NewRedisClient builds the client backing opaque sessions.
package postgres
