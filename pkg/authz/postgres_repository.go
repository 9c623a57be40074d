package authz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAuthorizationRepository implements AuthorizationRepository
// using PostgreSQL
type PostgresAuthorizationRepository struct {
	db *pgxpool.Pool
}

// NewPostgresAuthorizationRepository creates a new PostgreSQL
// authorization repository
func NewPostgresAuthorizationRepository(db *pgxpool.Pool) (*PostgresAuthorizationRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresAuthorizationRepository{db: db}, nil
}

// DeleteByClientID implements AuthorizationRepository.DeleteByClientID
func (r *PostgresAuthorizationRepository) DeleteByClientID(ctx context.Context, tenantID int, clientID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM authorizations WHERE tenant_id = $1 AND client_id = $2`,
		tenantID, clientID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete client authorizations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByClientIDAndPrincipal implements AuthorizationRepository.DeleteByClientIDAndPrincipal
func (r *PostgresAuthorizationRepository) DeleteByClientIDAndPrincipal(ctx context.Context, tenantID int, clientID, principalID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM authorizations WHERE tenant_id = $1 AND client_id = $2 AND principal_id = $3`,
		tenantID, clientID, principalID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete principal authorizations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateAuthorization implements AuthorizationRepository.CreateAuthorization
func (r *PostgresAuthorizationRepository) CreateAuthorization(ctx context.Context, authorization *Authorization) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO authorizations (tenant_id, client_id, principal_id, issued_on, metadata)
		 VALUES ($1, $2, $3, $4, $5)`,
		authorization.TenantID, authorization.ClientID, authorization.PrincipalID,
		authorization.IssuedOn, authorization.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create authorization: %w", err)
	}
	return nil
}

// CountByClientID implements AuthorizationRepository.CountByClientID
func (r *PostgresAuthorizationRepository) CountByClientID(ctx context.Context, tenantID int, clientID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM authorizations WHERE tenant_id = $1 AND client_id = $2`,
		tenantID, clientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count client authorizations: %w", err)
	}
	return count, nil
}
