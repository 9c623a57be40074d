package tenant

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/identity"
)

// Resolver resolves the calling tenant and principal from the portal
// identity service. *identity.Client satisfies it.
type Resolver interface {
	GetTenant(ctx context.Context, host, authCookie string) (*identity.Tenant, error)
	GetSelf(ctx context.Context, host, authCookie string) (*identity.Self, error)
}

// Middleware resolves the tenant and principal for every request and
// stores them on the context. Resolution failure is fatal to the request:
// nothing downstream may run without a tenant.
type Middleware struct {
	resolver     Resolver
	cookieName   string
	requireAdmin bool
}

// NewMiddleware creates a tenant resolution middleware
func NewMiddleware(resolver Resolver, cookieName string) *Middleware {
	if cookieName == "" {
		cookieName = identity.DefaultAuthCookieName
	}
	return &Middleware{
		resolver:   resolver,
		cookieName: cookieName,
	}
}

// NewAdminMiddleware creates a middleware that additionally rejects
// principals that are not portal administrators. Used on mutating
// client routes.
func NewAdminMiddleware(resolver Resolver, cookieName string) *Middleware {
	m := NewMiddleware(resolver, cookieName)
	m.requireAdmin = true
	return m
}

// Handler resolves tenant and principal, then calls next
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			renderError(w, r, errors.New(errors.ErrCodeUnauthorized, "missing auth cookie"))
			return
		}

		host := RequestHostAddress(r)
		ctx := r.Context()

		t, err := m.resolver.GetTenant(ctx, host, cookie.Value)
		if err != nil {
			slog.Error("Failed to resolve tenant", "err", err, "host", host)
			renderError(w, r, err)
			return
		}

		self, err := m.resolver.GetSelf(ctx, host, cookie.Value)
		if err != nil {
			slog.Error("Failed to resolve principal", "err", err, "tenant_id", t.TenantID)
			renderError(w, r, err)
			return
		}

		if m.requireAdmin && !self.IsAdmin {
			renderError(w, r, errors.New(errors.ErrCodeForbidden, "administrator role required"))
			return
		}

		ctx = WithTenant(ctx, AuthTenant{
			TenantID: t.TenantID,
			Alias:    t.TenantAlias,
			URL:      host,
			Timezone: t.Timezone,
		})
		ctx = WithPrincipal(ctx, AuthPrincipal{
			ID:       self.ID,
			UserName: self.UserName,
			Email:    self.Email,
			IsAdmin:  self.IsAdmin,
		})
		ctx = WithAuthCookie(ctx, cookie.Value)
		ctx = WithHost(ctx, host)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestHostAddress reconstructs the externally visible host address,
// preferring forwarded headers set by the portal proxy
func RequestHostAddress(r *http.Request) string {
	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS != nil {
		scheme = "https"
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	return scheme + "://" + host
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	render.Status(r, errors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, map[string]string{
		"error":   string(code),
		"message": "request could not be authorized",
	})
}
