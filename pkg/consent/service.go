package consent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-clients/pkg/tenant"
)

// RevocationScheduler enqueues the durable follow-up of a consent
// revocation: deleting the principal's authorizations for the client.
// Implementations must persist the intent so a restart between the
// consent update and the authorization delete cannot lose it.
type RevocationScheduler interface {
	SchedulePrincipalRevocation(ctx context.Context, tenantID int, clientID, principalID string) error
}

// ConsentService owns the consent ledger
type ConsentService struct {
	repository ConsentRepository
	scheduler  RevocationScheduler
}

// NewConsentService creates a new consent service
func NewConsentService(repository ConsentRepository, scheduler RevocationScheduler) *ConsentService {
	return &ConsentService{
		repository: repository,
		scheduler:  scheduler,
	}
}

// GetAllByPrincipal returns the principal's consents across all of the
// tenant's clients; each record's scopes reflect the latest grant
func (s *ConsentService) GetAllByPrincipal(ctx context.Context, ten tenant.AuthTenant, principalEmail string) ([]*ClientConsent, error) {
	return s.repository.GetAllByPrincipal(ctx, ten.TenantID, principalEmail)
}

// RevokeConsent marks the consent INVALIDATED and schedules revocation
// of the principal's authorizations for the client. The client record
// itself is untouched. The authorization delete runs in the background;
// this call returns once the intent is durably recorded.
func (s *ConsentService) RevokeConsent(ctx context.Context, ten tenant.AuthTenant, clientID, principalEmail string) error {
	if err := s.repository.Invalidate(ctx, clientID, principalEmail); err != nil {
		return err
	}

	if err := s.scheduler.SchedulePrincipalRevocation(ctx, ten.TenantID, clientID, principalEmail); err != nil {
		// Consent is already invalidated; a retried revoke re-enqueues
		return fmt.Errorf("failed to schedule authorization revocation: %w", err)
	}

	slog.Info("Revoked consent and scheduled authorization revocation",
		"tenant_id", ten.TenantID, "client_id", clientID, "principal", principalEmail)
	return nil
}

// InvalidateByClientID marks every consent of a client INVALIDATED.
// Called by the cascade worker after a client deletion; idempotent.
func (s *ConsentService) InvalidateByClientID(ctx context.Context, tenantID int, clientID string) error {
	changed, err := s.repository.InvalidateByClientID(ctx, tenantID, clientID)
	if err != nil {
		return err
	}
	slog.Info("Invalidated client consents",
		"tenant_id", tenantID, "client_id", clientID, "changed", changed)
	return nil
}
