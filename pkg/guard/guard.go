package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/workspaces"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RoleResolver looks up the authoritative role of a user in a workspace
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID, workspaceID uuid.UUID) (rbac.Role, error)
}

// AccessValidator confirms membership through the tenant-bound connection,
// independent of any claim the credential carries
type AccessValidator interface {
	ValidateWorkspaceAccess(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error)
}

// Request is the part of an inbound request the guard decides on
type Request struct {
	Method string
	Path   string

	// CallbackURL is the original request target (path and query)
	CallbackURL string

	// Credential is the raw bearer token or session cookie value
	Credential string

	// CredentialErr is set when a credential was present but unreadable
	CredentialErr error
}

// Guard classifies requests and decides whether they may proceed
type Guard struct {
	routes    *RouteTable
	validator auth.Validator
	resolver  RoleResolver
	access    AccessValidator
	logger    *observability.Logger

	strictMembership bool
	cookies          *auth.CookieCodec
	signInPath       string
	onboardingPath   string
	errorPath        string
}

// Option configures a Guard
type Option func(*Guard)

// WithStrictMembership controls whether every workspace request re-reads the
// membership store. When disabled the token's role claim is trusted for
// non-privileged permissions on the claimed workspace.
func WithStrictMembership(strict bool) Option {
	return func(g *Guard) {
		g.strictMembership = strict
	}
}

// WithAccessValidator checks membership on requests that trust the token's
// role claim instead of resolving the role
func WithAccessValidator(v AccessValidator) Option {
	return func(g *Guard) {
		g.access = v
	}
}

// WithCookieCodec sets the codec used to read session cookies
func WithCookieCodec(c *auth.CookieCodec) Option {
	return func(g *Guard) {
		g.cookies = c
	}
}

// WithRedirectPaths overrides where page routes are redirected on denial
func WithRedirectPaths(signIn, onboarding, errorPage string) Option {
	return func(g *Guard) {
		if signIn != "" {
			g.signInPath = signIn
		}
		if onboarding != "" {
			g.onboardingPath = onboarding
		}
		if errorPage != "" {
			g.errorPath = errorPage
		}
	}
}

// New creates a Guard
func New(routes *RouteTable, validator auth.Validator, resolver RoleResolver, logger *observability.Logger, opts ...Option) *Guard {
	g := &Guard{
		routes:           routes,
		validator:        validator,
		resolver:         resolver,
		logger:           logger,
		strictMembership: true,
		signInPath:       "/sign-in",
		onboardingPath:   "/onboarding",
		errorPath:        "/error",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Routes returns the guard's route table
func (g *Guard) Routes() *RouteTable {
	return g.routes
}

// Evaluate runs the access state machine for req. It has no side effects
// beyond logging and metrics; enforcement is up to the caller.
func (g *Guard) Evaluate(ctx context.Context, req Request) (d Decision) {
	ctx, span := observability.Tracer().Start(ctx, "guard.evaluate",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer func() {
		span.SetAttributes(
			attribute.String("guard.outcome", string(d.Outcome)),
			attribute.String("guard.reason", d.Reason),
		)
		if d.Err != nil {
			span.RecordError(d.Err)
			span.SetStatus(codes.Error, d.Reason)
		}
		span.End()
		observability.GuardDecisionsTotal.WithLabelValues(string(d.Outcome), d.Reason).Inc()
	}()

	route := g.routes.Classify(req.Method, req.Path)
	d = g.evaluate(ctx, req, route)
	d.Route = route
	d.Permission = route.Rule.Permission
	if d.Outcome == OutcomeUnauthenticated {
		d.CallbackURL = req.CallbackURL
		if d.CallbackURL == "" {
			d.CallbackURL = req.Path
		}
	}
	return d
}

func (g *Guard) evaluate(ctx context.Context, req Request, route Route) Decision {
	if route.Rule.Kind == RoutePublic {
		return Decision{Outcome: OutcomeAllowed, Reason: ReasonPublicRoute}
	}

	if req.CredentialErr != nil {
		return Decision{Outcome: OutcomeUnauthenticated, Reason: ReasonInvalidCredential}
	}
	if strings.TrimSpace(req.Credential) == "" {
		return Decision{Outcome: OutcomeUnauthenticated, Reason: ReasonNoCredential}
	}

	identity, err := g.validator.Validate(ctx, req.Credential)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			g.logger.WithError(err).WithField("path", req.Path).Debug("Rejected credential")
			return Decision{Outcome: OutcomeUnauthenticated, Reason: ReasonInvalidCredential}
		}
		return Decision{Outcome: OutcomeError, Reason: ReasonInternal, Err: err}
	}

	principal := &Principal{
		UserID:    identity.UserID,
		Email:     identity.Email,
		TokenKind: identity.Kind,
		Identity:  identity,
	}

	if route.Rule.Kind == RouteProtected {
		return Decision{Outcome: OutcomeAllowed, Reason: ReasonAuthenticated, Principal: principal}
	}

	return g.evaluateWorkspace(ctx, req, route, identity, principal)
}

func (g *Guard) evaluateWorkspace(ctx context.Context, req Request, route Route, identity *auth.SessionIdentity, principal *Principal) Decision {
	permission := route.Rule.Permission
	if route.Rule.API && permission == "" {
		return g.misconfigured(ctx, req, identity.UserID, uuid.Nil, ReasonPermissionNotDeclared)
	}

	workspaceID := uuid.Nil
	if route.WorkspaceID != "" {
		parsed, err := uuid.Parse(route.WorkspaceID)
		if err != nil {
			return Decision{Outcome: OutcomeInvalid, Reason: ReasonInvalidWorkspaceID}
		}
		workspaceID = parsed
	} else if identity.HasWorkspaceClaim() {
		workspaceID = *identity.WorkspaceID
	}
	if workspaceID == uuid.Nil {
		return Decision{Outcome: OutcomeNeedsWorkspace, Reason: ReasonNoWorkspace}
	}

	claimed := identity.HasWorkspaceClaim() && *identity.WorkspaceID == workspaceID
	if claimed && !identity.HasRoleClaim() {
		return g.misconfigured(ctx, req, identity.UserID, workspaceID, ReasonRoleMissing)
	}

	// The claim is only a hint. Anything privileged, anything targeting a
	// workspace other than the claimed one, and (by default) everything else
	// is checked against the membership table.
	verify := g.strictMembership || !claimed || permission.Privileged()

	var role rbac.Role
	if verify {
		resolved, err := g.resolver.ResolveRole(ctx, identity.UserID, workspaceID)
		switch {
		case errors.Is(err, workspaces.ErrNotAMember):
			return g.misconfigured(ctx, req, identity.UserID, workspaceID, ReasonNotAMember)
		case errors.Is(err, workspaces.ErrRoleMissing):
			return g.misconfigured(ctx, req, identity.UserID, workspaceID, ReasonRoleMissing)
		case err != nil:
			return Decision{Outcome: OutcomeError, Reason: ReasonInternal, Err: err}
		}
		if claimed && *identity.Role != resolved {
			return g.misconfigured(ctx, req, identity.UserID, workspaceID, ReasonRoleClaimMismatch)
		}
		role = resolved
	} else {
		if g.access != nil {
			ok, err := g.access.ValidateWorkspaceAccess(ctx, identity.UserID, workspaceID)
			if err != nil {
				return Decision{Outcome: OutcomeError, Reason: ReasonInternal, Err: err}
			}
			if !ok {
				return g.misconfigured(ctx, req, identity.UserID, workspaceID, ReasonNotAMember)
			}
		}
		role = *identity.Role
	}

	principal.WorkspaceID = workspaceID
	principal.Role = role
	principal.RoleVerified = verify

	if permission == "" {
		return Decision{Outcome: OutcomeAllowed, Reason: ReasonWorkspaceMember, Principal: principal}
	}
	if !rbac.HasPermission(role, permission) {
		g.logger.WithFields(map[string]interface{}{
			"user_id":      identity.UserID.String(),
			"workspace_id": workspaceID.String(),
			"role":         string(role),
			"permission":   string(permission),
			"path":         req.Path,
		}).Info("Permission denied")
		g.recordDenial(ctx, audit.EventTypeAccessDenied, req, identity.UserID, workspaceID, ReasonPermissionDenied)
		return Decision{Outcome: OutcomeForbidden, Reason: ReasonPermissionDenied}
	}
	return Decision{Outcome: OutcomeAllowed, Reason: ReasonPermissionGranted, Principal: principal}
}

// misconfigured records an anomaly that must be looked at by a human. It is
// never repaired automatically.
func (g *Guard) misconfigured(ctx context.Context, req Request, userID, workspaceID uuid.UUID, reason string) Decision {
	fields := map[string]interface{}{
		"reason":  reason,
		"user_id": userID.String(),
		"method":  req.Method,
		"path":    req.Path,
	}
	if workspaceID != uuid.Nil {
		fields["workspace_id"] = workspaceID.String()
	}
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	g.logger.SecurityEvent("access_misconfigured", fields)
	g.recordDenial(ctx, audit.EventTypeAccessMisconfigured, req, userID, workspaceID, reason)
	return Decision{Outcome: OutcomeMisconfigured, Reason: reason}
}

func (g *Guard) recordDenial(ctx context.Context, eventType audit.EventType, req Request, userID, workspaceID uuid.UUID, reason string) {
	ctx = contextkeys.WithUserID(ctx, userID.String())
	if err := audit.LogDenied(ctx, eventType, req.Method, req.Path, workspaceID, reason); err != nil {
		g.logger.WithError(err).Warn("Failed to record audit event")
	}
}
