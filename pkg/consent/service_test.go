package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/tenant"
)

var testTenant = tenant.AuthTenant{TenantID: 1, Alias: "acme"}

type fakeScheduler struct {
	revocations []string
}

func (f *fakeScheduler) SchedulePrincipalRevocation(ctx context.Context, tenantID int, clientID, principalID string) error {
	f.revocations = append(f.revocations, clientID+"/"+principalID)
	return nil
}

func seedConsent(t *testing.T, repo *InMemoryConsentRepository, clientID, principalID string, scopes ...string) {
	t.Helper()
	require.NoError(t, repo.UpsertConsent(context.Background(), &Consent{
		ClientID:    clientID,
		PrincipalID: principalID,
		TenantID:    testTenant.TenantID,
		Scopes:      scopes,
		Status:      StatusActive,
		ModifiedOn:  time.Now().UTC(),
	}))
}

func TestGetAllByPrincipal(t *testing.T) {
	repo := NewInMemoryConsentRepository()
	repo.SetClientName("client-a", "App A")
	repo.SetClientName("client-b", "App B")
	scheduler := &fakeScheduler{}
	service := NewConsentService(repo, scheduler)
	ctx := context.Background()

	seedConsent(t, repo, "client-a", "alice@example.com", "openid")
	seedConsent(t, repo, "client-b", "alice@example.com", "openid", "files:read")
	seedConsent(t, repo, "client-a", "bob@example.com", "openid")

	consents, err := service.GetAllByPrincipal(ctx, testTenant, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, consents, 2)

	names := map[string]string{}
	for _, c := range consents {
		names[c.ClientID] = c.ClientName
	}
	assert.Equal(t, "App A", names["client-a"])
	assert.Equal(t, "App B", names["client-b"])
}

func TestRevokeConsent(t *testing.T) {
	repo := NewInMemoryConsentRepository()
	scheduler := &fakeScheduler{}
	service := NewConsentService(repo, scheduler)
	ctx := context.Background()

	seedConsent(t, repo, "client-a", "alice@example.com", "openid")

	require.NoError(t, service.RevokeConsent(ctx, testTenant, "client-a", "alice@example.com"))

	stored, err := repo.GetConsent(ctx, "client-a", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidated, stored.Status)
	assert.Equal(t, []string{"client-a/alice@example.com"}, scheduler.revocations)

	// The revoked consent disappears from the overview
	consents, err := service.GetAllByPrincipal(ctx, testTenant, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, consents)
}

func TestRevokeConsent_Idempotent(t *testing.T) {
	repo := NewInMemoryConsentRepository()
	scheduler := &fakeScheduler{}
	service := NewConsentService(repo, scheduler)
	ctx := context.Background()

	seedConsent(t, repo, "client-a", "alice@example.com", "openid")

	require.NoError(t, service.RevokeConsent(ctx, testTenant, "client-a", "alice@example.com"))
	require.NoError(t, service.RevokeConsent(ctx, testTenant, "client-a", "alice@example.com"))

	// Each revoke re-enqueues; the background delete is idempotent
	assert.Len(t, scheduler.revocations, 2)
}

func TestRevokeConsent_UnknownConsent(t *testing.T) {
	repo := NewInMemoryConsentRepository()
	service := NewConsentService(repo, &fakeScheduler{})

	err := service.RevokeConsent(context.Background(), testTenant, "client-a", "nobody@example.com")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestInvalidateByClientID(t *testing.T) {
	repo := NewInMemoryConsentRepository()
	service := NewConsentService(repo, &fakeScheduler{})
	ctx := context.Background()

	seedConsent(t, repo, "client-a", "alice@example.com", "openid")
	seedConsent(t, repo, "client-a", "bob@example.com", "openid")
	seedConsent(t, repo, "client-b", "alice@example.com", "openid")

	require.NoError(t, service.InvalidateByClientID(ctx, testTenant.TenantID, "client-a"))

	for _, principal := range []string{"alice@example.com", "bob@example.com"} {
		stored, err := repo.GetConsent(ctx, "client-a", principal)
		require.NoError(t, err)
		assert.Equal(t, StatusInvalidated, stored.Status)
	}

	// Other clients' consents are untouched
	untouched, err := repo.GetConsent(ctx, "client-b", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, untouched.Status)

	// Running the cascade again changes nothing
	require.NoError(t, service.InvalidateByClientID(ctx, testTenant.TenantID, "client-a"))
}

func TestUpsertConsent_RegrantReplacesScopes(t *testing.T) {
	repo := NewInMemoryConsentRepository()
	ctx := context.Background()

	seedConsent(t, repo, "client-a", "alice@example.com", "openid")
	seedConsent(t, repo, "client-a", "alice@example.com", "openid", "files:read")

	stored, err := repo.GetConsent(ctx, "client-a", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "files:read"}, stored.Scopes)
}
