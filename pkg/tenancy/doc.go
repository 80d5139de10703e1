// Package tenancy binds database connections to a tenant for the duration
// of one unit of work.
//
// Row-level security policies in the schema read app.current_user_id and
// app.current_workspace_id. Binder sets both on a dedicated pooled
// connection, runs the callback, and clears them before the connection is
// reused:
//
//	err := binder.WithWorkspaceContext(ctx, userID, workspaceID, func(ctx context.Context, conn tenancy.Conn) error {
//		row := conn.QueryRow(ctx, `SELECT id, workspace_id FROM kpis WHERE id = $1`, id)
//		...
//		return tenancy.EnsureSameTenant(ctx, kpi.WorkspaceID)
//	})
//
// Two pool adapters are provided, SQLPool for database/sql and PgxPool for
// pgx. Callers must not retain conn after the callback returns.
package tenancy
