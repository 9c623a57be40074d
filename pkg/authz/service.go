package authz

import (
	"context"
	"log/slog"
)

// RevocationService owns deletion of issued authorization records.
// Both operations are idempotent: revoking a client with no remaining
// authorizations succeeds as a no-op.
type RevocationService struct {
	repository AuthorizationRepository
}

// NewRevocationService creates a new revocation service
func NewRevocationService(repository AuthorizationRepository) *RevocationService {
	return &RevocationService{
		repository: repository,
	}
}

// DeleteByClientID revokes every authorization of a tenant's client
func (s *RevocationService) DeleteByClientID(ctx context.Context, tenantID int, clientID string) error {
	deleted, err := s.repository.DeleteByClientID(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	slog.Info("Revoked client authorizations",
		"tenant_id", tenantID, "client_id", clientID, "deleted", deleted)
	return nil
}

// DeleteByClientIDAndPrincipal revokes a principal's authorizations for
// a tenant's client
func (s *RevocationService) DeleteByClientIDAndPrincipal(ctx context.Context, tenantID int, clientID, principalID string) error {
	deleted, err := s.repository.DeleteByClientIDAndPrincipal(ctx, tenantID, clientID, principalID)
	if err != nil {
		return err
	}
	slog.Info("Revoked principal authorizations",
		"tenant_id", tenantID, "client_id", clientID, "principal", principalID, "deleted", deleted)
	return nil
}
