package clientreg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/tenant"
)

var (
	testTenant    = tenant.AuthTenant{TenantID: 1, Alias: "acme", URL: "https://acme.example.com"}
	testPrincipal = tenant.AuthPrincipal{ID: "u-1", UserName: "admin", Email: "admin@acme.example.com", IsAdmin: true}
	testScopes    = []string{"openid", "accounts:read", "files:read"}
)

// fakeScheduler records cascade requests.
type fakeScheduler struct {
	cascades []string
}

func (f *fakeScheduler) ScheduleClientCascade(ctx context.Context, tenantID int, clientID string) error {
	f.cascades = append(f.cascades, clientID)
	return nil
}

func newTestService(t *testing.T) (*ClientService, *InMemoryClientRepository, *fakeScheduler) {
	t.Helper()
	repo := NewInMemoryClientRepository()
	cipher, err := NewSecretCipher("test-encryption-key-32-characters")
	require.NoError(t, err)
	scheduler := &fakeScheduler{}
	return NewClientService(repo, cipher, scheduler, testScopes), repo, scheduler
}

func createTestClient(t *testing.T, service *ClientService) *Client {
	t.Helper()
	client, err := service.CreateClient(context.Background(), testTenant, CreateClientParams{
		Name:         "Test App",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Scopes:       []string{"openid", "accounts:read"},
	}, testPrincipal, testTenant.URL)
	require.NoError(t, err)
	return client
}

func TestCreateClient(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()

	client := createTestClient(t, service)

	assert.NotEmpty(t, client.ClientID)
	assert.NotEmpty(t, client.ClientSecret)
	assert.True(t, client.Enabled)
	assert.False(t, client.Invalidated)
	assert.Equal(t, testPrincipal.Email, client.CreatedBy)
	assert.Equal(t, testTenant.TenantID, client.TenantID)

	// The stored secret is encrypted, never the plaintext
	stored, err := repo.GetClient(ctx, client.ClientID)
	require.NoError(t, err)
	assert.NotEqual(t, client.ClientSecret, stored.ClientSecret)

	// Reads decrypt back to the secret handed out at creation
	fetched, err := service.GetTenantClient(ctx, testTenant, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, client.ClientSecret, fetched.ClientSecret)
}

func TestCreateClient_RequiresRedirectURI(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.CreateClient(context.Background(), testTenant, CreateClientParams{
		Name:   "No Redirects",
		Scopes: []string{"openid"},
	}, testPrincipal, testTenant.URL)

	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestCreateClient_RejectsUnknownScope(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.CreateClient(context.Background(), testTenant, CreateClientParams{
		Name:         "Bad Scope",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Scopes:       []string{"openid", "payments:write"},
	}, testPrincipal, testTenant.URL)

	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidScope))
}

func TestUpdateClient(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	client := createTestClient(t, service)

	name := "Renamed App"
	err := service.UpdateClient(ctx, testTenant, client.ClientID, UpdateClientParams{Name: &name}, testPrincipal)
	require.NoError(t, err)

	updated, err := service.GetTenantClient(ctx, testTenant, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed App", updated.Name)
	// Untouched fields survive a partial update
	assert.Equal(t, client.RedirectURIs, updated.RedirectURIs)
	assert.Equal(t, client.ClientSecret, updated.ClientSecret)
}

func TestUpdateClient_EmptyRedirectURIsRejected(t *testing.T) {
	service, _, _ := newTestService(t)
	client := createTestClient(t, service)

	err := service.UpdateClient(context.Background(), testTenant, client.ClientID,
		UpdateClientParams{RedirectURIs: []string{}}, testPrincipal)

	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestUpdateClient_InvalidatedClientRejectsMutation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	client := createTestClient(t, service)

	require.NoError(t, service.DeleteClient(ctx, testTenant, client.ClientID, testPrincipal))

	name := "Should Not Apply"
	err := service.UpdateClient(ctx, testTenant, client.ClientID, UpdateClientParams{Name: &name}, testPrincipal)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidState))
}

func TestChangeActivation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	client := createTestClient(t, service)

	changed, err := service.ChangeActivation(ctx, testTenant, client.ClientID, false, testPrincipal)
	require.NoError(t, err)
	assert.True(t, changed)

	disabled, err := service.GetTenantClient(ctx, testTenant, client.ClientID)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	// Asking for the state the client is already in changes nothing
	changed, err = service.ChangeActivation(ctx, testTenant, client.ClientID, false, testPrincipal)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = service.ChangeActivation(ctx, testTenant, client.ClientID, true, testPrincipal)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestChangeActivation_InvalidatedClientStaysDisabled(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	client := createTestClient(t, service)

	require.NoError(t, service.DeleteClient(ctx, testTenant, client.ClientID, testPrincipal))

	changed, err := service.ChangeActivation(ctx, testTenant, client.ClientID, true, testPrincipal)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDeleteClient(t *testing.T) {
	service, _, scheduler := newTestService(t)
	ctx := context.Background()
	client := createTestClient(t, service)

	require.NoError(t, service.DeleteClient(ctx, testTenant, client.ClientID, testPrincipal))

	deleted, err := service.GetTenantClient(ctx, testTenant, client.ClientID)
	require.NoError(t, err)
	assert.True(t, deleted.Invalidated)
	assert.False(t, deleted.Enabled)
	assert.Equal(t, []string{client.ClientID}, scheduler.cascades)

	// Deleting again is a no-op that re-enqueues the cascade
	require.NoError(t, service.DeleteClient(ctx, testTenant, client.ClientID, testPrincipal))
	assert.Len(t, scheduler.cascades, 2)
}

func TestReplaceSecret(t *testing.T) {
	service, repo, _ := newTestService(t)
	ctx := context.Background()
	client := createTestClient(t, service)

	secret, err := service.ReplaceSecret(ctx, testTenant, client.ClientID, testPrincipal)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.NotEqual(t, client.ClientSecret, secret)

	stored, err := repo.GetClient(ctx, client.ClientID)
	require.NoError(t, err)
	assert.NotEqual(t, secret, stored.ClientSecret, "stored secret must be encrypted")

	fetched, err := service.GetTenantClient(ctx, testTenant, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, secret, fetched.ClientSecret)
}

func TestGetTenantClients_Pagination(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createTestClient(t, service)
	}

	page, err := service.GetTenantClients(ctx, testTenant, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, int64(5), page.Total)

	last, err := service.GetTenantClients(ctx, testTenant, 2, 2)
	require.NoError(t, err)
	assert.Len(t, last.Data, 1)

	empty, err := service.GetTenantClients(ctx, testTenant, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.Data)
	assert.Equal(t, int64(5), empty.Total)
}

func TestGetTenantClients_Bounds(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.GetTenantClients(ctx, testTenant, -1, 10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = service.GetTenantClients(ctx, testTenant, 0, 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = service.GetTenantClients(ctx, testTenant, 0, 101)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = service.GetTenantClients(ctx, testTenant, 0, 100)
	assert.NoError(t, err)
}

func TestGetTenantClient_WrongTenant(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	client := createTestClient(t, service)

	other := tenant.AuthTenant{TenantID: 2}
	_, err := service.GetTenantClient(ctx, other, client.ClientID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}
