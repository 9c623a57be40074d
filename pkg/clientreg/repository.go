package clientreg

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-clients/pkg/errors"
)

// ClientRepository defines the data access contract for client records.
// All reads and writes are tenant-scoped except GetClient, which serves
// the public client info path. Per-record update atomicity is the
// store's responsibility; callers rely on it instead of locking.
type ClientRepository interface {
	// GetClient retrieves a client by client ID regardless of tenant
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// GetTenantClient retrieves a client by client ID within a tenant
	GetTenantClient(ctx context.Context, tenantID int, clientID string) (*Client, error)

	// GetTenantClients returns one offset-based page of a tenant's
	// clients ordered by creation time, plus the total count
	GetTenantClients(ctx context.Context, tenantID, offset, limit int) ([]*Client, int64, error)

	// CreateClient persists a new client record
	CreateClient(ctx context.Context, client *Client) (*Client, error)

	// UpdateClient applies a partial metadata update to a live client.
	// Invalidated clients are not matched.
	UpdateClient(ctx context.Context, tenantID int, clientID string, params UpdateClientParams, modifiedBy string) error

	// UpdateSecret replaces the stored (encrypted) secret in a single
	// statement. This is rotation stage 2 and must be atomic.
	UpdateSecret(ctx context.Context, tenantID int, clientID, encryptedSecret, modifiedBy string) error

	// ChangeActivation toggles the enabled flag of a live client
	ChangeActivation(ctx context.Context, tenantID int, clientID string, enabled bool, modifiedBy string) error

	// Invalidate soft-deletes a client: invalidated=true, enabled=false.
	// Idempotent; invalidating an already-invalidated client is a no-op.
	Invalidate(ctx context.Context, tenantID int, clientID string, modifiedBy string) error
}

// InMemoryClientRepository implements ClientRepository with a mutex-guarded
// map. Used in tests and local development.
type InMemoryClientRepository struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewInMemoryClientRepository creates a new empty in-memory repository
func NewInMemoryClientRepository() *InMemoryClientRepository {
	return &InMemoryClientRepository{
		clients: make(map[string]*Client),
	}
}

// GetClient implements ClientRepository.GetClient
func (r *InMemoryClientRepository) GetClient(ctx context.Context, clientID string) (*Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.NotFound("client", clientID)
	}
	return copyClient(client), nil
}

// GetTenantClient implements ClientRepository.GetTenantClient
func (r *InMemoryClientRepository) GetTenantClient(ctx context.Context, tenantID int, clientID string) (*Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	client, ok := r.clients[clientID]
	if !ok || client.TenantID != tenantID {
		return nil, errors.NotFound("client", clientID)
	}
	return copyClient(client), nil
}

// GetTenantClients implements ClientRepository.GetTenantClients
func (r *InMemoryClientRepository) GetTenantClients(ctx context.Context, tenantID, offset, limit int) ([]*Client, int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var all []*Client
	for _, client := range r.clients {
		if client.TenantID == tenantID {
			all = append(all, client)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedOn.Equal(all[j].CreatedOn) {
			return all[i].ClientID < all[j].ClientID
		}
		return all[i].CreatedOn.Before(all[j].CreatedOn)
	})

	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	page := make([]*Client, 0, end-offset)
	for _, client := range all[offset:end] {
		page = append(page, copyClient(client))
	}
	return page, total, nil
}

// CreateClient implements ClientRepository.CreateClient
func (r *InMemoryClientRepository) CreateClient(ctx context.Context, client *Client) (*Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[client.ClientID]; exists {
		return nil, errors.Newf(errors.ErrCodeInternal, "client already exists: %s", client.ClientID)
	}
	r.clients[client.ClientID] = copyClient(client)
	return copyClient(client), nil
}

// UpdateClient implements ClientRepository.UpdateClient
func (r *InMemoryClientRepository) UpdateClient(ctx context.Context, tenantID int, clientID string, params UpdateClientParams, modifiedBy string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	client, ok := r.clients[clientID]
	if !ok || client.TenantID != tenantID || client.Invalidated {
		return errors.NotFound("client", clientID)
	}

	if params.Name != nil {
		client.Name = *params.Name
	}
	if params.Description != nil {
		client.Description = *params.Description
	}
	if params.WebsiteURL != nil {
		client.WebsiteURL = *params.WebsiteURL
	}
	if params.TermsURL != nil {
		client.TermsURL = *params.TermsURL
	}
	if params.PolicyURL != nil {
		client.PolicyURL = *params.PolicyURL
	}
	if params.LogoURL != nil {
		client.LogoURL = *params.LogoURL
	}
	if params.RedirectURIs != nil {
		client.RedirectURIs = append([]string(nil), params.RedirectURIs...)
	}
	if params.LogoutRedirectURIs != nil {
		client.LogoutRedirectURIs = append([]string(nil), params.LogoutRedirectURIs...)
	}
	client.ModifiedOn = time.Now().UTC()
	client.ModifiedBy = modifiedBy
	return nil
}

// UpdateSecret implements ClientRepository.UpdateSecret
func (r *InMemoryClientRepository) UpdateSecret(ctx context.Context, tenantID int, clientID, encryptedSecret, modifiedBy string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	client, ok := r.clients[clientID]
	if !ok || client.TenantID != tenantID || client.Invalidated {
		return errors.NotFound("client", clientID)
	}
	client.ClientSecret = encryptedSecret
	client.ModifiedOn = time.Now().UTC()
	client.ModifiedBy = modifiedBy
	return nil
}

// ChangeActivation implements ClientRepository.ChangeActivation
func (r *InMemoryClientRepository) ChangeActivation(ctx context.Context, tenantID int, clientID string, enabled bool, modifiedBy string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	client, ok := r.clients[clientID]
	if !ok || client.TenantID != tenantID || client.Invalidated {
		return errors.NotFound("client", clientID)
	}
	client.Enabled = enabled
	client.ModifiedOn = time.Now().UTC()
	client.ModifiedBy = modifiedBy
	return nil
}

// Invalidate implements ClientRepository.Invalidate
func (r *InMemoryClientRepository) Invalidate(ctx context.Context, tenantID int, clientID string, modifiedBy string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	client, ok := r.clients[clientID]
	if !ok || client.TenantID != tenantID {
		return errors.NotFound("client", clientID)
	}
	if client.Invalidated {
		return nil
	}
	client.Invalidated = true
	client.Enabled = false
	client.ModifiedOn = time.Now().UTC()
	client.ModifiedBy = modifiedBy
	return nil
}

func copyClient(c *Client) *Client {
	dup := *c
	dup.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	dup.LogoutRedirectURIs = append([]string(nil), c.LogoutRedirectURIs...)
	dup.Scopes = append([]string(nil), c.Scopes...)
	return &dup
}
