package tenancy

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// UserSetting is the session variable row-level security policies read
	UserSetting = "app.current_user_id"
	// WorkspaceSetting narrows tenant data policies to one workspace
	WorkspaceSetting = "app.current_workspace_id"

	bindQuery  = `SELECT set_config('app.current_user_id', $1, false), set_config('app.current_workspace_id', $2, false)`
	clearQuery = `SELECT set_config('app.current_user_id', '', false), set_config('app.current_workspace_id', '', false)`

	// DefaultTenantRole is the role the migrations grant tenant access to
	DefaultTenantRole = "tenantgate_tenant"

	defaultClearTimeout = 5 * time.Second
)

var roleNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Binder runs callbacks on a pooled connection bound to one user (and
// optionally one workspace) for exactly the callback's duration.
//
// The binding is a session-level setting on a dedicated connection. It is
// cleared before the connection goes back to the pool, including when the
// callback fails, panics or its context is cancelled. If clearing fails the
// connection is discarded rather than returned, so a later checkout can
// never observe a stale identity.
type Binder struct {
	pool         Pool
	logger       *observability.Logger
	clearTimeout time.Duration
	tenantRole   string
}

// BinderOption configures a Binder
type BinderOption func(*Binder)

// WithClearTimeout bounds how long clearing a binding may take
func WithClearTimeout(d time.Duration) BinderOption {
	return func(b *Binder) {
		if d > 0 {
			b.clearTimeout = d
		}
	}
}

// WithTenantRole sets the database role a bound connection assumes for the
// callback's duration. Row-level security applies to that role even when
// the pool logs in as the table owner.
func WithTenantRole(role string) BinderOption {
	return func(b *Binder) {
		b.tenantRole = role
	}
}

// NewBinder creates a Binder over pool
func NewBinder(pool Pool, logger *observability.Logger, opts ...BinderOption) (*Binder, error) {
	b := &Binder{
		pool:         pool,
		logger:       logger,
		clearTimeout: defaultClearTimeout,
		tenantRole:   DefaultTenantRole,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.tenantRole == "" {
		return nil, fmt.Errorf("a tenant role is required")
	}
	if !roleNamePattern.MatchString(b.tenantRole) {
		return nil, fmt.Errorf("invalid tenant role name %q", b.tenantRole)
	}
	return b, nil
}

// WithTenantContext runs fn on a connection bound to userID
func (b *Binder) WithTenantContext(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, conn Conn) error) error {
	if userID == uuid.Nil {
		return ErrInvalidTenant
	}
	return b.run(ctx, Scope{UserID: userID}, fn)
}

// WithWorkspaceContext runs fn on a connection bound to userID and
// workspaceID. The caller must already have authorized the user for the
// workspace; the binding only narrows what the connection can see.
func (b *Binder) WithWorkspaceContext(ctx context.Context, userID, workspaceID uuid.UUID, fn func(ctx context.Context, conn Conn) error) error {
	if userID == uuid.Nil || workspaceID == uuid.Nil {
		return ErrInvalidTenant
	}
	return b.run(ctx, Scope{UserID: userID, WorkspaceID: workspaceID}, fn)
}

func (b *Binder) run(ctx context.Context, scope Scope, fn func(ctx context.Context, conn Conn) error) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "tenancy.bind",
		trace.WithAttributes(
			attribute.String("tenant.user_id", scope.UserID.String()),
			attribute.Bool("tenant.workspace_bound", scope.HasWorkspace()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	label := "user"
	if scope.HasWorkspace() {
		label = "workspace"
	}
	start := time.Now()

	defer func() {
		r := recover()
		b.release(ctx, conn, scope)
		observability.TenantBindingDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if r != nil {
			panic(r)
		}
	}()

	if err := b.bind(ctx, conn, scope); err != nil {
		return fmt.Errorf("failed to bind tenant context: %w", err)
	}

	ctx = contextkeys.WithTenantScope(ctx, scope)
	ctx = contextkeys.WithUserID(ctx, scope.UserID.String())
	if scope.HasWorkspace() {
		ctx = contextkeys.WithWorkspaceID(ctx, scope.WorkspaceID.String())
	}
	return fn(ctx, conn)
}

func (b *Binder) bind(ctx context.Context, conn Conn, scope Scope) error {
	workspace := ""
	if scope.HasWorkspace() {
		workspace = scope.WorkspaceID.String()
	}
	if err := conn.Exec(ctx, bindQuery, scope.UserID.String(), workspace); err != nil {
		return err
	}
	return conn.Exec(ctx, "SET ROLE "+pq.QuoteIdentifier(b.tenantRole))
}

// release clears the binding and hands the connection back, or discards it
// when the binding cannot be proven cleared. It runs detached from ctx so a
// cancelled request still cleans up.
func (b *Binder) release(ctx context.Context, conn PooledConn, scope Scope) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.clearTimeout)
	defer cancel()

	err := b.clear(clearCtx, conn)
	if err == nil {
		conn.Release()
		return
	}

	conn.Discard()
	observability.TenantClearFailuresTotal.Inc()
	b.logger.WithError(err).
		WithField("user_id", scope.UserID.String()).
		Error("Failed to clear tenant binding, connection discarded")
}

func (b *Binder) clear(ctx context.Context, conn Conn) error {
	if err := conn.Exec(ctx, "RESET ROLE"); err != nil {
		return err
	}
	return conn.Exec(ctx, clearQuery)
}
