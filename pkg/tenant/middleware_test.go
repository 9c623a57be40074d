package tenant

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/identity"
)

type fakeResolver struct {
	tenant    *identity.Tenant
	self      *identity.Self
	tenantErr error
	selfErr   error

	lastHost   string
	lastCookie string
}

func (f *fakeResolver) GetTenant(_ context.Context, host, authCookie string) (*identity.Tenant, error) {
	f.lastHost = host
	f.lastCookie = authCookie
	if f.tenantErr != nil {
		return nil, f.tenantErr
	}
	return f.tenant, nil
}

func (f *fakeResolver) GetSelf(_ context.Context, _, _ string) (*identity.Self, error) {
	if f.selfErr != nil {
		return nil, f.selfErr
	}
	return f.self, nil
}

func newFakeResolver(isAdmin bool) *fakeResolver {
	return &fakeResolver{
		tenant: &identity.Tenant{TenantID: 42, TenantAlias: "acme", Timezone: "UTC"},
		self: &identity.Self{
			Profile: identity.Profile{ID: "user-1", UserName: "jdoe", Email: "jdoe@acme.example.com"},
			IsAdmin: isAdmin,
		},
	}
}

func captureHandler(captured **http.Request) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = r
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_MissingCookie(t *testing.T) {
	m := NewMiddleware(newFakeResolver(false), "")

	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	rec := httptest.NewRecorder()
	m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without a cookie")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_PopulatesContext(t *testing.T) {
	resolver := newFakeResolver(false)
	m := NewMiddleware(resolver, "")

	var captured *http.Request
	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	req.Host = "acme.example.com"
	req.AddCookie(&http.Cookie{Name: identity.DefaultAuthCookieName, Value: "cookie-value"})
	rec := httptest.NewRecorder()
	m.Handler(captureHandler(&captured)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)

	at, ok := FromContext(captured.Context())
	require.True(t, ok)
	assert.Equal(t, 42, at.TenantID)
	assert.Equal(t, "acme", at.Alias)

	p, ok := PrincipalFromContext(captured.Context())
	require.True(t, ok)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "jdoe@acme.example.com", p.Email)
	assert.False(t, p.IsAdmin)

	assert.Equal(t, "cookie-value", AuthCookieFromContext(captured.Context()))

	assert.Equal(t, "cookie-value", resolver.lastCookie)
	assert.Equal(t, "http://acme.example.com", resolver.lastHost)
}

func TestMiddleware_ForwardedHeaders(t *testing.T) {
	resolver := newFakeResolver(false)
	m := NewMiddleware(resolver, "")

	var captured *http.Request
	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "portal.acme.example.com, internal")
	req.AddCookie(&http.Cookie{Name: identity.DefaultAuthCookieName, Value: "cookie-value"})
	rec := httptest.NewRecorder()
	m.Handler(captureHandler(&captured)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://portal.acme.example.com", resolver.lastHost)

	assert.Equal(t, "https://portal.acme.example.com", HostFromContext(captured.Context()))
}

func TestMiddleware_ResolutionFailure(t *testing.T) {
	resolver := newFakeResolver(false)
	resolver.tenantErr = errors.UpstreamUnavailable(fmt.Errorf("connection refused"), "GetTenant")
	m := NewMiddleware(resolver, "")

	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	req.AddCookie(&http.Cookie{Name: identity.DefaultAuthCookieName, Value: "cookie-value"})
	rec := httptest.NewRecorder()
	m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run when the tenant cannot be resolved")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminMiddleware_RejectsNonAdmin(t *testing.T) {
	m := NewAdminMiddleware(newFakeResolver(false), "")

	req := httptest.NewRequest(http.MethodPost, "/clients", nil)
	req.AddCookie(&http.Cookie{Name: identity.DefaultAuthCookieName, Value: "cookie-value"})
	rec := httptest.NewRecorder()
	m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run for a non-admin principal")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminMiddleware_AllowsAdmin(t *testing.T) {
	m := NewAdminMiddleware(newFakeResolver(true), "custom_cookie")

	var captured *http.Request
	req := httptest.NewRequest(http.MethodPost, "/clients", nil)
	req.AddCookie(&http.Cookie{Name: "custom_cookie", Value: "cookie-value"})
	rec := httptest.NewRecorder()
	m.Handler(captureHandler(&captured)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	p, ok := PrincipalFromContext(captured.Context())
	require.True(t, ok)
	assert.True(t, p.IsAdmin)
}
