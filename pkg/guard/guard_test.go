package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_PublicRouteIgnoresCredential(t *testing.T) {
	f := newGuardFixture(t)

	for _, path := range []string{"/sign-in", "/healthz", "/api/auth/callback"} {
		d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: path})
		assert.Equal(t, OutcomeAllowed, d.Outcome, path)
		assert.Equal(t, ReasonPublicRoute, d.Reason)
		assert.Nil(t, d.Principal)
	}

	// Even a broken credential does not matter on a public route
	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/sign-in", Credential: "garbage"})
	assert.Equal(t, OutcomeAllowed, d.Outcome)
}

func TestEvaluate_NoTokenOnProtectedRoute(t *testing.T) {
	f := newGuardFixture(t)

	d := f.guard.Evaluate(context.Background(), Request{
		Method:      "GET",
		Path:        "/dashboard",
		CallbackURL: "/dashboard?tab=kpis",
	})
	assert.Equal(t, OutcomeUnauthenticated, d.Outcome)
	assert.Equal(t, ReasonNoCredential, d.Reason)
	assert.Equal(t, "/dashboard?tab=kpis", d.CallbackURL)

	d = f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/onboarding"})
	assert.Equal(t, OutcomeUnauthenticated, d.Outcome)
	assert.Equal(t, "/onboarding", d.CallbackURL)
}

func TestEvaluate_InvalidCredential(t *testing.T) {
	f := newGuardFixture(t)

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/api/me", Credential: "not-registered"})
	assert.Equal(t, OutcomeUnauthenticated, d.Outcome)
	assert.Equal(t, ReasonInvalidCredential, d.Reason)

	d = f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/api/me", CredentialErr: errors.New("bad cookie")})
	assert.Equal(t, OutcomeUnauthenticated, d.Outcome)
	assert.Equal(t, ReasonInvalidCredential, d.Reason)
}

func TestEvaluate_ValidatorStorageFailureIsError(t *testing.T) {
	f := newGuardFixture(t)
	f.validator.err = errors.New("redis: connection refused")

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/api/me", Credential: "anything"})
	assert.Equal(t, OutcomeError, d.Outcome)
	assert.Error(t, d.Err)
	assert.Equal(t, 500, d.Status())
}

func TestEvaluate_ProtectedRouteNeedsOnlyToken(t *testing.T) {
	f := newGuardFixture(t)
	token := f.token(nil, nil)

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/api/workspaces", Credential: token})
	require.Equal(t, OutcomeAllowed, d.Outcome)
	assert.Equal(t, ReasonAuthenticated, d.Reason)
	require.NotNil(t, d.Principal)
	assert.Equal(t, f.userID, d.Principal.UserID)
	assert.False(t, d.Principal.HasWorkspace())
	assert.Zero(t, f.resolver.callCount())
}

func TestEvaluate_UnmatchedPathFailsClosed(t *testing.T) {
	f := newGuardFixture(t)

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/api/unknown"})
	assert.Equal(t, OutcomeUnauthenticated, d.Outcome)
	assert.False(t, d.Route.Matched)
	assert.True(t, d.Route.Rule.API)
}

func TestEvaluate_AdminWithoutWorkspaceNeedsWorkspace(t *testing.T) {
	f := newGuardFixture(t)
	token := f.token(nil, rolePtr(rbac.RoleAdmin))

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/dashboard", Credential: token})
	assert.Equal(t, OutcomeNeedsWorkspace, d.Outcome)
	assert.Equal(t, ReasonNoWorkspace, d.Reason)
	assert.Equal(t, 403, d.Status())
}

func TestEvaluate_WorkspaceWithoutRoleIsMisconfigured(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.set(f.userID, f.workspace, rbac.RoleAdmin)
	token := f.token(idPtr(f.workspace), nil)
	before := testutil.ToFloat64(observability.SecurityEventsTotal.WithLabelValues("access_misconfigured"))

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/dashboard", Credential: token})
	assert.Equal(t, OutcomeMisconfigured, d.Outcome)
	assert.Equal(t, ReasonRoleMissing, d.Reason)
	assert.Nil(t, d.Principal, "a role is never defaulted")
	assert.Equal(t, before+1, testutil.ToFloat64(observability.SecurityEventsTotal.WithLabelValues("access_misconfigured")))
}

func TestEvaluate_MemberThenAdminCreatingKPI(t *testing.T) {
	f := newGuardFixture(t)

	// Owner invited the user as a member
	f.resolver.set(f.userID, f.workspace, rbac.RoleMember)
	memberToken := f.token(idPtr(f.workspace), rolePtr(rbac.RoleMember))

	d := f.guard.Evaluate(context.Background(), Request{Method: "POST", Path: kpiPath(f.workspace), Credential: memberToken})
	assert.Equal(t, OutcomeForbidden, d.Outcome)
	assert.Equal(t, ReasonPermissionDenied, d.Reason)
	assert.Equal(t, rbac.PermKPICreate, d.Permission)

	// Members can still read
	d = f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: kpiPath(f.workspace), Credential: memberToken})
	assert.Equal(t, OutcomeAllowed, d.Outcome)

	// After promotion the same request is allowed
	f.resolver.set(f.userID, f.workspace, rbac.RoleAdmin)
	adminToken := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	d = f.guard.Evaluate(context.Background(), Request{Method: "POST", Path: kpiPath(f.workspace), Credential: adminToken})
	require.Equal(t, OutcomeAllowed, d.Outcome)
	assert.Equal(t, ReasonPermissionGranted, d.Reason)
	assert.Equal(t, f.workspace, d.Principal.WorkspaceID)
	assert.Equal(t, rbac.RoleAdmin, d.Principal.Role)
	assert.True(t, d.Principal.RoleVerified)
}

func TestEvaluate_RoleClaimMismatch(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.set(f.userID, f.workspace, rbac.RoleMember)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	d := f.guard.Evaluate(context.Background(), Request{Method: "POST", Path: kpiPath(f.workspace), Credential: token})
	assert.Equal(t, OutcomeMisconfigured, d.Outcome)
	assert.Equal(t, ReasonRoleClaimMismatch, d.Reason)
}

func TestEvaluate_PathWorkspaceIsResolvedNotClaimed(t *testing.T) {
	f := newGuardFixture(t)
	other := uuid.New()
	f.resolver.set(f.userID, f.workspace, rbac.RoleOwner)
	f.resolver.set(f.userID, other, rbac.RoleMember)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleOwner))

	// The owner claim for the active workspace says nothing about other
	d := f.guard.Evaluate(context.Background(), Request{Method: "POST", Path: kpiPath(other), Credential: token})
	assert.Equal(t, OutcomeForbidden, d.Outcome)

	d = f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: kpiPath(other), Credential: token})
	require.Equal(t, OutcomeAllowed, d.Outcome)
	assert.Equal(t, other, d.Principal.WorkspaceID)
	assert.Equal(t, rbac.RoleMember, d.Principal.Role)
}

func TestEvaluate_ForeignWorkspace(t *testing.T) {
	f := newGuardFixture(t)
	foreign := uuid.New()
	f.resolver.set(f.userID, f.workspace, rbac.RoleOwner)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleOwner))

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: kpiPath(foreign), Credential: token})
	assert.Equal(t, OutcomeMisconfigured, d.Outcome)
	assert.Equal(t, ReasonNotAMember, d.Reason)
}

func TestEvaluate_MembershipWithoutRole(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.missing[membershipKey{f.userID, f.workspace}] = true
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: kpiPath(f.workspace), Credential: token})
	assert.Equal(t, OutcomeMisconfigured, d.Outcome)
	assert.Equal(t, ReasonRoleMissing, d.Reason)
}

func TestEvaluate_ResolverFailureIsError(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.err = errors.New("pq: connection reset")
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: kpiPath(f.workspace), Credential: token})
	assert.Equal(t, OutcomeError, d.Outcome)
	assert.ErrorContains(t, d.Err, "connection reset")
}

func TestEvaluate_PermissionNotDeclared(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.set(f.userID, f.workspace, rbac.RoleOwner)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleOwner))

	d := f.guard.Evaluate(context.Background(), Request{
		Method:     "GET",
		Path:       "/api/workspaces/" + f.workspace.String() + "/undeclared",
		Credential: token,
	})
	assert.Equal(t, OutcomeMisconfigured, d.Outcome)
	assert.Equal(t, ReasonPermissionNotDeclared, d.Reason)
}

func TestEvaluate_InvalidPathWorkspace(t *testing.T) {
	f := newGuardFixture(t)
	token := f.token(nil, nil)

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/api/workspaces/acme/kpis", Credential: token})
	assert.Equal(t, OutcomeInvalid, d.Outcome)
	assert.Equal(t, ReasonInvalidWorkspaceID, d.Reason)
	assert.Equal(t, 400, d.Status())
}

func TestEvaluate_RelaxedMembershipTrustsClaimForReads(t *testing.T) {
	f := newGuardFixture(t, WithStrictMembership(false))
	f.resolver.set(f.userID, f.workspace, rbac.RoleAdmin)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	d := f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: kpiPath(f.workspace), Credential: token})
	require.Equal(t, OutcomeAllowed, d.Outcome)
	assert.False(t, d.Principal.RoleVerified)
	assert.Zero(t, f.resolver.callCount())

	// Privileged permissions are always checked against the store
	d = f.guard.Evaluate(context.Background(), Request{
		Method:     "DELETE",
		Path:       "/api/workspaces/" + f.workspace.String() + "/members/" + uuid.New().String(),
		Credential: token,
	})
	require.Equal(t, OutcomeAllowed, d.Outcome)
	assert.True(t, d.Principal.RoleVerified)
	assert.Equal(t, 1, f.resolver.callCount())
}

func TestEvaluate_RelaxedMembershipStillChecksAccess(t *testing.T) {
	access := &fakeAccess{members: map[membershipKey]bool{}}
	f := newGuardFixture(t, WithStrictMembership(false), WithAccessValidator(access))
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleMember))
	req := Request{Method: "GET", Path: kpiPath(f.workspace), Credential: token}

	// Removed after the token was issued; the claim alone must not admit
	d := f.guard.Evaluate(context.Background(), req)
	assert.Equal(t, OutcomeMisconfigured, d.Outcome)
	assert.Equal(t, ReasonNotAMember, d.Reason)
	assert.Equal(t, 1, access.calls)
	assert.Zero(t, f.resolver.callCount())

	access.members[membershipKey{f.userID, f.workspace}] = true
	d = f.guard.Evaluate(context.Background(), req)
	require.Equal(t, OutcomeAllowed, d.Outcome)
	assert.Equal(t, rbac.RoleMember, d.Principal.Role)
	assert.False(t, d.Principal.RoleVerified)

	access.err = errors.New("connection refused")
	d = f.guard.Evaluate(context.Background(), req)
	assert.Equal(t, OutcomeError, d.Outcome)
}

func TestEvaluate_StaleClaimCaughtOnPrivilegedOperation(t *testing.T) {
	f := newGuardFixture(t, WithStrictMembership(false))
	// Demoted after the token was issued
	f.resolver.set(f.userID, f.workspace, rbac.RoleMember)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	d := f.guard.Evaluate(context.Background(), Request{
		Method:     "DELETE",
		Path:       "/api/workspaces/" + f.workspace.String() + "/members/" + uuid.New().String(),
		Credential: token,
	})
	assert.Equal(t, OutcomeMisconfigured, d.Outcome)
	assert.Equal(t, ReasonRoleClaimMismatch, d.Reason)
}

func TestEvaluate_RecordsDecisionMetric(t *testing.T) {
	f := newGuardFixture(t)
	counter := observability.GuardDecisionsTotal.WithLabelValues(string(OutcomeUnauthenticated), ReasonNoCredential)
	before := testutil.ToFloat64(counter)

	f.guard.Evaluate(context.Background(), Request{Method: "GET", Path: "/dashboard"})
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

// auditRecorder captures audit events written during evaluation
type auditRecorder struct {
	events []*audit.AuditEvent
}

func (a *auditRecorder) Log(_ context.Context, event *audit.AuditEvent) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditRecorder) Close() error { return nil }

func TestEvaluate_RecordsDenialsInAuditTrail(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.set(f.userID, f.workspace, rbac.RoleMember)
	recorder := &auditRecorder{}
	ctx := audit.WithLogger(context.Background(), recorder)

	memberToken := f.token(idPtr(f.workspace), rolePtr(rbac.RoleMember))
	f.guard.Evaluate(ctx, Request{Method: "POST", Path: kpiPath(f.workspace), Credential: memberToken})

	brokenToken := f.token(idPtr(f.workspace), nil)
	f.guard.Evaluate(ctx, Request{Method: "GET", Path: "/dashboard", Credential: brokenToken})

	// Missing credentials are routine and not audited
	f.guard.Evaluate(ctx, Request{Method: "GET", Path: "/dashboard"})

	require.Len(t, recorder.events, 2)
	assert.Equal(t, audit.EventTypeAccessDenied, recorder.events[0].EventType)
	assert.Equal(t, f.userID, *recorder.events[0].ActorID)
	assert.Equal(t, f.workspace, *recorder.events[0].WorkspaceID)
	assert.Equal(t, ReasonPermissionDenied, recorder.events[0].Metadata["reason"])

	assert.Equal(t, audit.EventTypeAccessMisconfigured, recorder.events[1].EventType)
	assert.Equal(t, ReasonRoleMissing, recorder.events[1].Metadata["reason"])
}
