package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-clients/pkg/errors"
)

func TestDisplayName(t *testing.T) {
	p := &Profile{FirstName: "Jane", LastName: "Doe"}
	assert.Equal(t, "Jane Doe", p.DisplayName())

	assert.Equal(t, "Jane", (&Profile{FirstName: "Jane"}).DisplayName())
	assert.Equal(t, "Doe", (&Profile{LastName: "Doe"}).DisplayName())
	assert.Equal(t, "", (&Profile{}).DisplayName())
}

func TestGetProfile(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/people/email", r.URL.Path)
		assert.Equal(t, "jane@acme.example.com", r.URL.Query().Get("email"))
		if c, err := r.Cookie(DefaultAuthCookieName); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"id":"user-1","firstName":"Jane","lastName":"Doe","avatarSmall":"/ava.png"}}`))
	}))
	defer srv.Close()

	c := NewClient()
	profile, err := c.GetProfile(context.Background(), srv.URL, "cookie-value", "jane@acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", profile.ID)
	assert.Equal(t, "Jane Doe", profile.DisplayName())
	assert.Equal(t, "/ava.png", profile.AvatarSmall)
	assert.Equal(t, "cookie-value", gotCookie)
}

func TestGetTenant_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"response":{"tenantId":42,"tenantAlias":"acme","timeZone":"UTC"}}`))
	}))
	defer srv.Close()

	c := NewClient(WithMaxRetries(5))
	tenant, err := c.GetTenant(context.Background(), srv.URL, "cookie-value")
	require.NoError(t, err)
	assert.Equal(t, 42, tenant.TenantID)
	assert.Equal(t, "acme", tenant.TenantAlias)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetTenant_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithMaxRetries(5))
	_, err := c.GetTenant(context.Background(), srv.URL, "bad-cookie")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUpstreamUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetSelf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/people/@self", r.URL.Path)
		w.Write([]byte(`{"response":{"id":"user-1","email":"jane@acme.example.com","isAdmin":true}}`))
	}))
	defer srv.Close()

	c := NewClient()
	self, err := c.GetSelf(context.Background(), srv.URL, "cookie-value")
	require.NoError(t, err)
	assert.True(t, self.IsAdmin)
	assert.Equal(t, "jane@acme.example.com", self.Email)

	isAdmin, err := c.GetAdmin(context.Background(), srv.URL, "cookie-value")
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestGetProfile_CallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(WithCallTimeout(50 * time.Millisecond))
	start := time.Now()
	_, err := c.GetProfile(context.Background(), srv.URL, "cookie-value", "jane@acme.example.com")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWithCookieName(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("custom_cookie"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte(`{"response":{}}`))
	}))
	defer srv.Close()

	c := NewClient(WithCookieName("custom_cookie"))
	_, err := c.GetProfile(context.Background(), srv.URL, "cookie-value", "jane@acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, "cookie-value", gotCookie)
}
