package authz

import (
	"context"
	"sync"
)

// AuthorizationRepository defines the data access contract for
// authorization records. Deletes are tenant-scoped bulk operations and
// deleting zero rows is success.
type AuthorizationRepository interface {
	// DeleteByClientID deletes every authorization of a tenant's client
	DeleteByClientID(ctx context.Context, tenantID int, clientID string) (int64, error)

	// DeleteByClientIDAndPrincipal deletes a principal's authorizations
	// for a tenant's client
	DeleteByClientIDAndPrincipal(ctx context.Context, tenantID int, clientID, principalID string) (int64, error)

	// CreateAuthorization records a grant; used by tests and the seed
	// tooling, the authorization server owns creation in production
	CreateAuthorization(ctx context.Context, authorization *Authorization) error

	// CountByClientID reports how many authorizations remain for a
	// tenant's client
	CountByClientID(ctx context.Context, tenantID int, clientID string) (int64, error)
}

// InMemoryAuthorizationRepository implements AuthorizationRepository
// with a mutex-guarded slice. Used in tests.
type InMemoryAuthorizationRepository struct {
	records []*Authorization
	mutex   sync.RWMutex
}

// NewInMemoryAuthorizationRepository creates a new empty in-memory repository
func NewInMemoryAuthorizationRepository() *InMemoryAuthorizationRepository {
	return &InMemoryAuthorizationRepository{}
}

// DeleteByClientID implements AuthorizationRepository.DeleteByClientID
func (r *InMemoryAuthorizationRepository) DeleteByClientID(ctx context.Context, tenantID int, clientID string) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var kept []*Authorization
	var deleted int64
	for _, a := range r.records {
		if a.TenantID == tenantID && a.ClientID == clientID {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	r.records = kept
	return deleted, nil
}

// DeleteByClientIDAndPrincipal implements AuthorizationRepository.DeleteByClientIDAndPrincipal
func (r *InMemoryAuthorizationRepository) DeleteByClientIDAndPrincipal(ctx context.Context, tenantID int, clientID, principalID string) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var kept []*Authorization
	var deleted int64
	for _, a := range r.records {
		if a.TenantID == tenantID && a.ClientID == clientID && a.PrincipalID == principalID {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	r.records = kept
	return deleted, nil
}

// CreateAuthorization implements AuthorizationRepository.CreateAuthorization
func (r *InMemoryAuthorizationRepository) CreateAuthorization(ctx context.Context, authorization *Authorization) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dup := *authorization
	r.records = append(r.records, &dup)
	return nil
}

// CountByClientID implements AuthorizationRepository.CountByClientID
func (r *InMemoryAuthorizationRepository) CountByClientID(ctx context.Context, tenantID int, clientID string) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var count int64
	for _, a := range r.records {
		if a.TenantID == tenantID && a.ClientID == clientID {
			count++
		}
	}
	return count, nil
}
