package consent

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/simple-clients/pkg/errors"
)

// ConsentRepository defines the data access contract for consent
// records. The (client_id, principal_id) pair is the record key.
type ConsentRepository interface {
	// GetAllByPrincipal returns the principal's ACTIVE consents across
	// all of the tenant's clients, joined with client display metadata
	GetAllByPrincipal(ctx context.Context, tenantID int, principalID string) ([]*ClientConsent, error)

	// GetConsent retrieves one consent by its composite key
	GetConsent(ctx context.Context, clientID, principalID string) (*Consent, error)

	// UpsertConsent creates the consent or refreshes its scopes; a
	// re-grant on an active consent replaces the scope set
	UpsertConsent(ctx context.Context, consent *Consent) error

	// Invalidate marks one consent INVALIDATED. Idempotent.
	Invalidate(ctx context.Context, clientID, principalID string) error

	// InvalidateByClientID marks every consent of a client INVALIDATED,
	// returning how many records changed. Idempotent.
	InvalidateByClientID(ctx context.Context, tenantID int, clientID string) (int64, error)
}

type consentKey struct {
	clientID    string
	principalID string
}

// InMemoryConsentRepository implements ConsentRepository with a
// mutex-guarded map. Used in tests.
type InMemoryConsentRepository struct {
	consents    map[consentKey]*Consent
	clientNames map[string]string
	mutex       sync.RWMutex
}

// NewInMemoryConsentRepository creates a new empty in-memory repository
func NewInMemoryConsentRepository() *InMemoryConsentRepository {
	return &InMemoryConsentRepository{
		consents:    make(map[consentKey]*Consent),
		clientNames: make(map[string]string),
	}
}

// SetClientName registers display metadata for a client, mirroring the
// join the Postgres implementation performs
func (r *InMemoryConsentRepository) SetClientName(clientID, name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.clientNames[clientID] = name
}

// GetAllByPrincipal implements ConsentRepository.GetAllByPrincipal
func (r *InMemoryConsentRepository) GetAllByPrincipal(ctx context.Context, tenantID int, principalID string) ([]*ClientConsent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*ClientConsent
	for _, c := range r.consents {
		if c.TenantID == tenantID && c.PrincipalID == principalID && c.Status == StatusActive {
			result = append(result, &ClientConsent{
				Consent:    *copyConsent(c),
				ClientName: r.clientNames[c.ClientID],
			})
		}
	}
	return result, nil
}

// GetConsent implements ConsentRepository.GetConsent
func (r *InMemoryConsentRepository) GetConsent(ctx context.Context, clientID, principalID string) (*Consent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, ok := r.consents[consentKey{clientID, principalID}]
	if !ok {
		return nil, errors.NotFound("consent", clientID+"/"+principalID)
	}
	return copyConsent(c), nil
}

// UpsertConsent implements ConsentRepository.UpsertConsent
func (r *InMemoryConsentRepository) UpsertConsent(ctx context.Context, consent *Consent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.consents[consentKey{consent.ClientID, consent.PrincipalID}] = copyConsent(consent)
	return nil
}

// Invalidate implements ConsentRepository.Invalidate
func (r *InMemoryConsentRepository) Invalidate(ctx context.Context, clientID, principalID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	c, ok := r.consents[consentKey{clientID, principalID}]
	if !ok {
		return errors.NotFound("consent", clientID+"/"+principalID)
	}
	if c.Status == StatusInvalidated {
		return nil
	}
	c.Status = StatusInvalidated
	c.ModifiedOn = time.Now().UTC()
	return nil
}

// InvalidateByClientID implements ConsentRepository.InvalidateByClientID
func (r *InMemoryConsentRepository) InvalidateByClientID(ctx context.Context, tenantID int, clientID string) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var changed int64
	for _, c := range r.consents {
		if c.TenantID == tenantID && c.ClientID == clientID && c.Status == StatusActive {
			c.Status = StatusInvalidated
			c.ModifiedOn = time.Now().UTC()
			changed++
		}
	}
	return changed, nil
}

func copyConsent(c *Consent) *Consent {
	dup := *c
	dup.Scopes = append([]string(nil), c.Scopes...)
	return &dup
}
