package tenant

import (
	"context"
	"log/slog"
)

// AuthTenant is the tenant resolved for the current request
type AuthTenant struct {
	TenantID int    `json:"tenant_id"`
	Alias    string `json:"alias,omitempty"`
	URL      string `json:"url,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// AuthPrincipal is the authenticated end-user behind the current request
type AuthPrincipal struct {
	ID       string `json:"id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

func (t AuthTenant) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("tenant_id", t.TenantID),
		slog.String("alias", t.Alias),
	)
}

func (p AuthPrincipal) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("principal", p.ID),
		slog.String("user_name", p.UserName),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation. This technique
// for defining context keys was copied from Go 1.7's new use of context in net/http.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "tenant context value " + k.name
}

var (
	TenantKey     = &contextKey{"AuthTenant"}
	PrincipalKey  = &contextKey{"AuthPrincipal"}
	AuthCookieKey = &contextKey{"AuthCookie"}
	HostKey       = &contextKey{"Host"}
)

// WithTenant stores the resolved tenant on the context
func WithTenant(ctx context.Context, t AuthTenant) context.Context {
	return context.WithValue(ctx, TenantKey, t)
}

// WithPrincipal stores the resolved principal on the context
func WithPrincipal(ctx context.Context, p AuthPrincipal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// WithAuthCookie stores the forwarded auth cookie value on the context
func WithAuthCookie(ctx context.Context, cookie string) context.Context {
	return context.WithValue(ctx, AuthCookieKey, cookie)
}

// WithHost stores the request host address on the context
func WithHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, HostKey, host)
}

// FromContext extracts the tenant from the context
func FromContext(ctx context.Context) (AuthTenant, bool) {
	t, ok := ctx.Value(TenantKey).(AuthTenant)
	return t, ok
}

// PrincipalFromContext extracts the principal from the context
func PrincipalFromContext(ctx context.Context) (AuthPrincipal, bool) {
	p, ok := ctx.Value(PrincipalKey).(AuthPrincipal)
	return p, ok
}

// AuthCookieFromContext extracts the forwarded auth cookie from the context
func AuthCookieFromContext(ctx context.Context) string {
	cookie, _ := ctx.Value(AuthCookieKey).(string)
	return cookie
}

// HostFromContext extracts the request host address from the context
func HostFromContext(ctx context.Context) string {
	host, _ := ctx.Value(HostKey).(string)
	return host
}
