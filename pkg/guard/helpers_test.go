package guard

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/workspaces"
	"github.com/stretchr/testify/require"
)

const kpiCollection = "/api/workspaces/{workspaceId}/kpis"

// fakeValidator resolves tokens from a fixed table
type fakeValidator struct {
	identities map[string]*auth.SessionIdentity
	err        error
}

func (v *fakeValidator) Validate(_ context.Context, raw string) (*auth.SessionIdentity, error) {
	if v.err != nil {
		return nil, v.err
	}
	identity, ok := v.identities[raw]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthenticated)
	}
	return identity, nil
}

type membershipKey struct {
	user, workspace uuid.UUID
}

// fakeResolver answers from an in-memory membership table and counts lookups
type fakeResolver struct {
	mu      sync.Mutex
	roles   map[membershipKey]rbac.Role
	missing map[membershipKey]bool
	err     error
	calls   int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{roles: map[membershipKey]rbac.Role{}, missing: map[membershipKey]bool{}}
}

func (r *fakeResolver) set(user, workspace uuid.UUID, role rbac.Role) {
	r.roles[membershipKey{user, workspace}] = role
}

func (r *fakeResolver) ResolveRole(_ context.Context, userID, workspaceID uuid.UUID) (rbac.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	if r.err != nil {
		return "", r.err
	}
	key := membershipKey{userID, workspaceID}
	if r.missing[key] {
		return "", workspaces.ErrRoleMissing
	}
	role, ok := r.roles[key]
	if !ok {
		return "", workspaces.ErrNotAMember
	}
	return role, nil
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeAccess answers membership checks from its own table, which can
// disagree with the role claims carried by tokens
type fakeAccess struct {
	members map[membershipKey]bool
	err     error
	calls   int
}

func (a *fakeAccess) ValidateWorkspaceAccess(_ context.Context, userID, workspaceID uuid.UUID) (bool, error) {
	a.calls++
	if a.err != nil {
		return false, a.err
	}
	return a.members[membershipKey{userID, workspaceID}], nil
}

type guardFixture struct {
	guard     *Guard
	validator *fakeValidator
	resolver  *fakeResolver
	userID    uuid.UUID
	workspace uuid.UUID
}

func newGuardFixture(t *testing.T, opts ...Option) *guardFixture {
	t.Helper()

	routes, err := NewRouteTable(DefaultRules()...)
	require.NoError(t, err)
	require.NoError(t, routes.Add(Rule{Path: kpiCollection, Methods: []string{"GET"}, Kind: RouteWorkspace, API: true, Permission: rbac.PermKPIView}))
	require.NoError(t, routes.Add(Rule{Path: kpiCollection, Methods: []string{"POST"}, Kind: RouteWorkspace, API: true, Permission: rbac.PermKPICreate}))
	require.NoError(t, routes.Add(Rule{Path: "/api/workspaces/{workspaceId}/members/{userId}", Methods: []string{"DELETE"}, Kind: RouteWorkspace, API: true, Permission: rbac.PermMemberRemove}))
	require.NoError(t, routes.Add(Rule{Path: "/api/workspaces/{workspaceId}/undeclared", Kind: RouteWorkspace, API: true}))

	f := &guardFixture{
		validator: &fakeValidator{identities: map[string]*auth.SessionIdentity{}},
		resolver:  newFakeResolver(),
		userID:    uuid.New(),
		workspace: uuid.New(),
	}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	f.guard = New(routes, f.validator, f.resolver, logger, opts...)
	return f
}

// token registers an identity for the fixture user and returns its credential
func (f *guardFixture) token(workspaceID *uuid.UUID, role *rbac.Role) string {
	raw := fmt.Sprintf("token-%d", len(f.validator.identities))
	f.validator.identities[raw] = &auth.SessionIdentity{
		UserID:      f.userID,
		Email:       "user@example.com",
		WorkspaceID: workspaceID,
		Role:        role,
		Kind:        auth.TokenKindJWT,
	}
	return raw
}

func rolePtr(r rbac.Role) *rbac.Role { return &r }

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

func kpiPath(workspaceID uuid.UUID) string {
	return "/api/workspaces/" + workspaceID.String() + "/kpis"
}
