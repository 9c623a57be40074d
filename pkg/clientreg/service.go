package clientreg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/tenant"
)

// Pagination bounds enforced on every list operation
const (
	MinPage  = 0
	MinLimit = 1
	MaxLimit = 100
)

// CascadeScheduler schedules the background cleanup that must follow a
// client invalidation: deleting its authorizations and invalidating its
// consents. Implementations must be durable (survive a restart) and
// at-least-once.
type CascadeScheduler interface {
	ScheduleClientCascade(ctx context.Context, tenantID int, clientID string) error
}

// ClientService owns the client lifecycle: registration, metadata
// updates, activation toggling, and soft deletion with cascading
// revocation.
type ClientService struct {
	repository    ClientRepository
	cipher        *SecretCipher
	scheduler     CascadeScheduler
	allowedScopes map[string]bool
}

// NewClientService creates a new client service. allowedScopes is the
// server-wide scope catalogue, loaded once at startup and never mutated.
func NewClientService(repository ClientRepository, cipher *SecretCipher, scheduler CascadeScheduler, allowedScopes []string) *ClientService {
	catalogue := make(map[string]bool, len(allowedScopes))
	for _, s := range allowedScopes {
		catalogue[s] = true
	}
	return &ClientService{
		repository:    repository,
		cipher:        cipher,
		scheduler:     scheduler,
		allowedScopes: catalogue,
	}
}

// CreateClient registers a new client for the tenant. Every requested
// scope must belong to the allowed-scope catalogue. The returned client
// carries the plaintext secret; it is shown to the caller once and
// stored encrypted.
func (s *ClientService) CreateClient(ctx context.Context, ten tenant.AuthTenant, params CreateClientParams, creator tenant.AuthPrincipal, originAddress string) (*Client, error) {
	if len(params.RedirectURIs) == 0 {
		return nil, errors.InvalidArgument("redirect_uris", "at least one redirect URI is required")
	}
	for _, scope := range params.Scopes {
		if !s.allowedScopes[scope] {
			slog.Error("Rejected client registration with unsupported scope",
				"tenant_id", ten.TenantID, "scope", scope)
			return nil, errors.InvalidScope(scope)
		}
	}

	secret, err := GenerateClientSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate credentials: %w", err)
	}
	encryptedSecret, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt client secret: %w", err)
	}

	now := time.Now().UTC()
	client := &Client{
		ClientID:             uuid.NewString(),
		ClientSecret:         encryptedSecret,
		Name:                 params.Name,
		Description:          params.Description,
		WebsiteURL:           params.WebsiteURL,
		TermsURL:             params.TermsURL,
		PolicyURL:            params.PolicyURL,
		LogoURL:              params.LogoURL,
		AuthenticationMethod: params.AuthenticationMethod,
		TenantID:             ten.TenantID,
		TenantURL:            originAddress,
		RedirectURIs:         append([]string(nil), params.RedirectURIs...),
		LogoutRedirectURIs:   append([]string(nil), params.LogoutRedirectURIs...),
		Scopes:               append([]string(nil), params.Scopes...),
		Enabled:              true,
		Invalidated:          false,
		CreatedOn:            now,
		CreatedBy:            creator.Email,
		ModifiedOn:           now,
		ModifiedBy:           creator.Email,
	}

	created, err := s.repository.CreateClient(ctx, client)
	if err != nil {
		return nil, err
	}

	slog.Info("Registered new client", "tenant_id", ten.TenantID, "client_id", created.ClientID)

	// Hand the plaintext secret back to the caller, once
	result := copyClient(created)
	result.ClientSecret = secret
	return result, nil
}

// UpdateClient applies a partial metadata update. Invalidated clients
// reject every mutation.
func (s *ClientService) UpdateClient(ctx context.Context, ten tenant.AuthTenant, clientID string, params UpdateClientParams, modifier tenant.AuthPrincipal) error {
	existing, err := s.repository.GetTenantClient(ctx, ten.TenantID, clientID)
	if err != nil {
		return err
	}
	if existing.Invalidated {
		return errors.InvalidState(clientID)
	}
	if params.RedirectURIs != nil && len(params.RedirectURIs) == 0 {
		return errors.InvalidArgument("redirect_uris", "at least one redirect URI is required")
	}

	if err := s.repository.UpdateClient(ctx, ten.TenantID, clientID, params, modifier.Email); err != nil {
		return err
	}
	slog.Info("Updated client", "tenant_id", ten.TenantID, "client_id", clientID)
	return nil
}

// ChangeActivation toggles the enabled flag. Returns false without
// touching the record when the client is invalidated or already in the
// requested state; the caller maps false to a rejected response.
func (s *ClientService) ChangeActivation(ctx context.Context, ten tenant.AuthTenant, clientID string, enabled bool, modifier tenant.AuthPrincipal) (bool, error) {
	existing, err := s.repository.GetTenantClient(ctx, ten.TenantID, clientID)
	if err != nil {
		return false, err
	}
	if existing.Invalidated || existing.Enabled == enabled {
		return false, nil
	}

	if err := s.repository.ChangeActivation(ctx, ten.TenantID, clientID, enabled, modifier.Email); err != nil {
		return false, err
	}
	slog.Info("Changed client activation", "tenant_id", ten.TenantID, "client_id", clientID, "enabled", enabled)
	return true, nil
}

// DeleteClient soft-deletes the client and schedules the cascade.
// The record is marked invalidated and disabled immediately; deleting
// its authorizations and invalidating its consents happens in the
// background and is guaranteed to eventually complete. Idempotent.
func (s *ClientService) DeleteClient(ctx context.Context, ten tenant.AuthTenant, clientID string, modifier tenant.AuthPrincipal) error {
	if err := s.repository.Invalidate(ctx, ten.TenantID, clientID, modifier.Email); err != nil {
		return err
	}

	if err := s.scheduler.ScheduleClientCascade(ctx, ten.TenantID, clientID); err != nil {
		// The mark landed; a retried delete re-enqueues the cascade
		return fmt.Errorf("failed to schedule client cascade: %w", err)
	}

	slog.Info("Invalidated client and scheduled cascade", "tenant_id", ten.TenantID, "client_id", clientID)
	return nil
}

// ReplaceSecret generates, encrypts and persists a new secret in a
// single statement, returning the plaintext. Rotation stage 2; callers
// must have revoked the client's authorizations first.
func (s *ClientService) ReplaceSecret(ctx context.Context, ten tenant.AuthTenant, clientID string, modifier tenant.AuthPrincipal) (string, error) {
	secret, err := GenerateClientSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate credentials: %w", err)
	}
	encryptedSecret, err := s.cipher.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt client secret: %w", err)
	}

	if err := s.repository.UpdateSecret(ctx, ten.TenantID, clientID, encryptedSecret, modifier.Email); err != nil {
		return "", err
	}
	return secret, nil
}

// GetClient retrieves a client by client ID with the secret decrypted
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*Client, error) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.withPlaintextSecret(client)
}

// GetTenantClient retrieves a tenant's client with the secret decrypted
func (s *ClientService) GetTenantClient(ctx context.Context, ten tenant.AuthTenant, clientID string) (*Client, error) {
	client, err := s.repository.GetTenantClient(ctx, ten.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	return s.withPlaintextSecret(client)
}

// GetTenantClients returns one page of the tenant's clients ordered by
// creation time. page >= 0 and 1 <= limit <= 100.
func (s *ClientService) GetTenantClients(ctx context.Context, ten tenant.AuthTenant, page, limit int) (*Page, error) {
	if page < MinPage {
		return nil, errors.InvalidArgument("page", "must not be negative")
	}
	if limit < MinLimit || limit > MaxLimit {
		return nil, errors.InvalidArgument("limit", "must be between 1 and 100")
	}

	clients, total, err := s.repository.GetTenantClients(ctx, ten.TenantID, page*limit, limit)
	if err != nil {
		return nil, err
	}
	for i, client := range clients {
		decrypted, err := s.withPlaintextSecret(client)
		if err != nil {
			return nil, err
		}
		clients[i] = decrypted
	}
	return &Page{Data: clients, Page: page, Limit: limit, Total: total}, nil
}

func (s *ClientService) withPlaintextSecret(client *Client) (*Client, error) {
	secret, err := s.cipher.Decrypt(client.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt client secret: %w", err)
	}
	result := copyClient(client)
	result.ClientSecret = secret
	return result, nil
}
