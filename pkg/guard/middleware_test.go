package guard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler records what reached it
type echoHandler struct {
	called    bool
	headers   http.Header
	principal *Principal
}

func (h *echoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.headers = r.Header.Clone()
	h.principal, _ = PrincipalFrom(r.Context())
	w.WriteHeader(http.StatusOK)
}

func serve(t *testing.T, g *Guard, req *http.Request) (*httptest.ResponseRecorder, *echoHandler) {
	t.Helper()
	next := &echoHandler{}
	rec := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rec, req)
	return rec, next
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMiddleware_PageRedirectsToSignInWithCallback(t *testing.T) {
	f := newGuardFixture(t)

	rec, next := serve(t, f.guard, httptest.NewRequest("GET", "/dashboard?tab=kpis", nil))

	assert.False(t, next.called)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/sign-in?callbackUrl=%2Fdashboard%3Ftab%3Dkpis", rec.Header().Get("Location"))
}

func TestMiddleware_DotSegmentsRedirectToCleanPath(t *testing.T) {
	f := newGuardFixture(t)

	rec, next := serve(t, f.guard, httptest.NewRequest("GET", "/sign-in/../settings?tab=members", nil))

	assert.False(t, next.called, "a public prefix must not carry the request past the guard")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/settings?tab=members", rec.Header().Get("Location"))
}

func TestMiddleware_APIUnauthenticated(t *testing.T) {
	f := newGuardFixture(t)

	rec, next := serve(t, f.guard, httptest.NewRequest("GET", "/api/me", nil))

	assert.False(t, next.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, httputil.CodeUnauthenticated, body.Error)
	assert.Empty(t, body.Reason)
}

func TestMiddleware_NeedsWorkspace(t *testing.T) {
	f := newGuardFixture(t)
	token := f.token(nil, nil)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ := serve(t, f.guard, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/onboarding?reason=no_workspace", rec.Header().Get("Location"))

	// API clients get a 403 they can act on instead of a redirect
	f.guard.routes.Add(Rule{Path: "/api/current/kpis", Kind: RouteWorkspace, API: true, Permission: rbac.PermKPIView})
	req = httptest.NewRequest("GET", "/api/current/kpis", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ = serve(t, f.guard, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, httputil.CodeNeedsWorkspace, body.Error)
	assert.Equal(t, ReasonNoWorkspace, body.Reason)
}

func TestMiddleware_MisconfiguredPageGoesToErrorPage(t *testing.T) {
	f := newGuardFixture(t)
	token := f.token(idPtr(f.workspace), nil)

	req := httptest.NewRequest("GET", "/settings/members", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, next := serve(t, f.guard, req)

	assert.False(t, next.called)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/error?reason=role_missing", rec.Header().Get("Location"))
}

func TestMiddleware_ForbiddenAPI(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.set(f.userID, f.workspace, rbac.RoleMember)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleMember))

	req := httptest.NewRequest("POST", kpiPath(f.workspace), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, next := serve(t, f.guard, req)

	assert.False(t, next.called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, httputil.CodeForbidden, body.Error)
	assert.Equal(t, ReasonPermissionDenied, body.Reason)
}

func TestMiddleware_AllowedInjectsTrustedIdentity(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.set(f.userID, f.workspace, rbac.RoleAdmin)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	req := httptest.NewRequest("POST", kpiPath(f.workspace), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderUserID, uuid.New().String())
	req.Header.Set(HeaderUserRole, "owner")
	rec, next := serve(t, f.guard, req)

	require.True(t, next.called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.userID.String(), next.headers.Get(HeaderUserID))
	assert.Equal(t, f.workspace.String(), next.headers.Get(HeaderWorkspaceID))
	assert.Equal(t, "admin", next.headers.Get(HeaderUserRole))

	require.NotNil(t, next.principal)
	assert.Equal(t, rbac.RoleAdmin, next.principal.Role)
	assert.True(t, next.principal.Can(rbac.PermKPICreate))
}

func TestMiddleware_ProtectedRouteCarriesUserOnly(t *testing.T) {
	f := newGuardFixture(t)
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderWorkspaceID, uuid.New().String())
	_, next := serve(t, f.guard, req)

	require.True(t, next.called)
	assert.Equal(t, f.userID.String(), next.headers.Get(HeaderUserID))
	assert.Empty(t, next.headers.Get(HeaderWorkspaceID))
	assert.Empty(t, next.headers.Get(HeaderUserRole))
	require.NotNil(t, next.principal.Identity)
	assert.Equal(t, f.workspace, *next.principal.Identity.WorkspaceID)
}

func TestMiddleware_PublicRouteStripsForgedHeaders(t *testing.T) {
	f := newGuardFixture(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set(HeaderUserID, uuid.New().String())
	req.Header.Set(HeaderWorkspaceID, uuid.New().String())
	req.Header.Set(HeaderUserRole, "owner")
	_, next := serve(t, f.guard, req)

	require.True(t, next.called)
	assert.Empty(t, next.headers.Get(HeaderUserID))
	assert.Empty(t, next.headers.Get(HeaderWorkspaceID))
	assert.Empty(t, next.headers.Get(HeaderUserRole))
	assert.Nil(t, next.principal)
}

func TestMiddleware_StorageFailureIsOpaque(t *testing.T) {
	f := newGuardFixture(t)
	f.resolver.err = errors.New("pq: password authentication failed for user tenantgate")
	token := f.token(idPtr(f.workspace), rolePtr(rbac.RoleAdmin))

	req := httptest.NewRequest("GET", kpiPath(f.workspace), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, next := serve(t, f.guard, req)

	assert.False(t, next.called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Equal(t, httputil.CodeInternal, decodeError(t, rec).Error)
}

func TestMiddleware_MalformedAuthorizationHeader(t *testing.T) {
	f := newGuardFixture(t)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rec, _ := serve(t, f.guard, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_SignedSessionCookie(t *testing.T) {
	codec := auth.NewCookieCodec("", []byte("0123456789abcdef0123456789abcdef"), nil, false)
	f := newGuardFixture(t, WithCookieCodec(codec))
	token := f.token(nil, nil)

	cookie, err := codec.Encode(token, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(cookie)
	_, next := serve(t, f.guard, req)
	require.True(t, next.called)
	assert.Equal(t, f.userID, next.principal.UserID)

	// A raw token in the cookie does not carry a valid signature
	req = httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: codec.Name(), Value: token})
	rec, next := serve(t, f.guard, req)
	assert.False(t, next.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_CustomRedirectPaths(t *testing.T) {
	f := newGuardFixture(t, WithRedirectPaths("/login", "", ""))

	rec, _ := serve(t, f.guard, httptest.NewRequest("GET", "/dashboard", nil))
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard", rec.Header().Get("Location"))
}
