package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/kpis"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
	"github.com/platinummonkey/tenantgate/pkg/workspaces"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WorkspaceStore is the workspace, membership and invitation storage the
// handlers need
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, req workspaces.CreateWorkspaceRequest) (*workspaces.Workspace, error)
	ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]*workspaces.Member, error)
	UpdateMemberRole(ctx context.Context, workspaceID, userID uuid.UUID, role rbac.Role) error
	RemoveMember(ctx context.Context, workspaceID, userID uuid.UUID) error
	CreateInvitation(ctx context.Context, workspaceID uuid.UUID, email string, role rbac.Role, invitedBy uuid.UUID, ttl time.Duration) (*workspaces.Invitation, string, error)
	ListInvitations(ctx context.Context, workspaceID uuid.UUID) ([]*workspaces.Invitation, error)
	AcceptInvitation(ctx context.Context, token string, userID uuid.UUID, email string) (*workspaces.Membership, error)
	RevokeInvitation(ctx context.Context, workspaceID, id uuid.UUID) error
}

// WorkspaceLister lists the workspaces a user belongs to and confirms
// membership in one, both through a tenant-bound connection
type WorkspaceLister interface {
	GetAccessibleWorkspaces(ctx context.Context, userID uuid.UUID) ([]tenancy.AccessibleWorkspace, error)
	ValidateWorkspaceAccess(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error)
}

// SessionSwitcher changes the active workspace of an opaque session
type SessionSwitcher interface {
	SwitchWorkspace(ctx context.Context, raw string, workspaceID uuid.UUID, role rbac.Role) error
}

// AuditSearcher reads a workspace's audit trail
type AuditSearcher interface {
	Search(ctx context.Context, userID, workspaceID uuid.UUID, filter audit.SearchFilter) ([]*audit.AuditEvent, error)
}

// Dependencies are the collaborators the server is built from. Sessions,
// AuditSearch, Limiter, Health and Registry are optional.
type Dependencies struct {
	Workspaces WorkspaceStore
	Lister     WorkspaceLister
	Resolver   guard.RoleResolver
	Validator  auth.Validator
	KPIs       kpis.Service

	Sessions    SessionSwitcher
	AuditLogger audit.Logger
	AuditSearch AuditSearcher
	Limiter     middleware.Limiter
	Health      *observability.HealthChecker
	Registry    *prometheus.Registry

	// Rules are extra route rules, e.g. loaded from a YAML file. They are
	// evaluated after the built-in rules.
	Rules        []guard.Rule
	GuardOptions []guard.Option

	InvitationTTL time.Duration
	Logger        *observability.Logger
}

// RouteRegistrar mounts handlers and declares their guard rules
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router, routes *guard.RouteTable) error
}

// Server is the tenantgate HTTP API. Every request passes the guard before
// it reaches the router.
type Server struct {
	router  *mux.Router
	routes  *guard.RouteTable
	guard   *guard.Guard
	handler http.Handler
	logger  *observability.Logger
}

// NewServer wires the handlers, the route table and the guard
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Workspaces == nil || deps.Lister == nil || deps.Resolver == nil || deps.Validator == nil || deps.KPIs == nil {
		return nil, errors.New("api: workspaces, lister, resolver, validator and kpis are required")
	}
	if deps.Logger == nil {
		return nil, errors.New("api: logger is required")
	}
	if deps.InvitationTTL <= 0 {
		deps.InvitationTTL = workspaces.DefaultInvitationTTL
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}
	s.router.Use(observability.HTTPMetricsMiddleware)
	s.router.NotFoundHandler = http.HandlerFunc(notFound)

	routes, err := mountRoutes(s.router, deps)
	if err != nil {
		return nil, err
	}
	s.routes = routes
	s.registerOperational(deps)

	guardOpts := append([]guard.Option{guard.WithAccessValidator(deps.Lister)}, deps.GuardOptions...)
	s.guard = guard.New(s.routes, deps.Validator, deps.Resolver, deps.Logger, guardOpts...)

	auditLogger := deps.AuditLogger
	if auditLogger == nil {
		auditLogger = audit.NewLogLogger(deps.Logger)
	}

	s.handler = middleware.Chain(
		middleware.RequestID,
		middleware.RequestLogger(deps.Logger),
		middleware.Recovery,
		audit.NewMiddleware(auditLogger).Handler,
		s.guard.Middleware,
	)(s.router)
	s.handler = otelhttp.NewHandler(s.handler, "tenantgate")

	return s, nil
}

func mountRoutes(router *mux.Router, deps Dependencies) (*guard.RouteTable, error) {
	routes, err := guard.NewRouteTable(guard.DefaultRules()...)
	if err != nil {
		return nil, err
	}

	registrars := []RouteRegistrar{
		newWorkspaceHandlers(deps),
		newMemberHandlers(deps),
		newAuditHandlers(deps.AuditSearch),
		kpis.NewHandlers(deps.KPIs),
	}
	for _, r := range registrars {
		if err := r.RegisterRoutes(router, routes); err != nil {
			return nil, err
		}
	}
	for _, rule := range deps.Rules {
		if err := routes.Add(rule); err != nil {
			return nil, err
		}
	}
	return routes, nil
}

// DescribeRoutes returns the route table a fully configured server enforces,
// including extra rules, without connecting to any store
func DescribeRoutes(extra []guard.Rule) (*guard.RouteTable, error) {
	return mountRoutes(mux.NewRouter(), Dependencies{
		AuditSearch: unavailableSearch{},
		Rules:       extra,
	})
}

type unavailableSearch struct{}

func (unavailableSearch) Search(context.Context, uuid.UUID, uuid.UUID, audit.SearchFilter) ([]*audit.AuditEvent, error) {
	return nil, errors.New("api: audit search is not configured")
}

// registerOperational mounts the probes and the metrics endpoint. The
// default route table declares them public.
func (s *Server) registerOperational(deps Dependencies) {
	if deps.Health != nil {
		s.router.HandleFunc("/healthz", deps.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", deps.Health.Readiness).Methods(http.MethodGet)
	}
	if deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(deps.Registry)).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Routes returns the route table the guard enforces
func (s *Server) Routes() *guard.RouteTable {
	return s.routes
}

// Guard returns the access guard in front of the router
func (s *Server) Guard() *guard.Guard {
	return s.guard
}
