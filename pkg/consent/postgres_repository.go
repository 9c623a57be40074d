package consent

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-clients/pkg/errors"
)

// PostgresConsentRepository implements ConsentRepository using PostgreSQL
type PostgresConsentRepository struct {
	db *pgxpool.Pool
}

// NewPostgresConsentRepository creates a new PostgreSQL consent repository
func NewPostgresConsentRepository(db *pgxpool.Pool) (*PostgresConsentRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresConsentRepository{db: db}, nil
}

// GetAllByPrincipal implements ConsentRepository.GetAllByPrincipal
func (r *PostgresConsentRepository) GetAllByPrincipal(ctx context.Context, tenantID int, principalID string) ([]*ClientConsent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT co.client_id, co.principal_id, co.tenant_id, co.scopes, co.status, co.modified_on,
		        cl.name, cl.logo_url
		 FROM consents co
		 JOIN clients cl ON cl.client_id = co.client_id
		 WHERE co.tenant_id = $1 AND co.principal_id = $2 AND co.status = 'ACTIVE'
		 ORDER BY co.modified_on DESC`,
		tenantID, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principal consents: %w", err)
	}
	defer rows.Close()

	var result []*ClientConsent
	for rows.Next() {
		var cc ClientConsent
		err := rows.Scan(&cc.ClientID, &cc.PrincipalID, &cc.TenantID, &cc.Scopes,
			&cc.Status, &cc.ModifiedOn, &cc.ClientName, &cc.ClientLogo)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent row: %w", err)
		}
		result = append(result, &cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read consent rows: %w", err)
	}
	return result, nil
}

// GetConsent implements ConsentRepository.GetConsent
func (r *PostgresConsentRepository) GetConsent(ctx context.Context, clientID, principalID string) (*Consent, error) {
	var c Consent
	err := r.db.QueryRow(ctx,
		`SELECT client_id, principal_id, tenant_id, scopes, status, modified_on
		 FROM consents WHERE client_id = $1 AND principal_id = $2`,
		clientID, principalID).
		Scan(&c.ClientID, &c.PrincipalID, &c.TenantID, &c.Scopes, &c.Status, &c.ModifiedOn)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("consent", clientID+"/"+principalID)
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return &c, nil
}

// UpsertConsent implements ConsentRepository.UpsertConsent
func (r *PostgresConsentRepository) UpsertConsent(ctx context.Context, consent *Consent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO consents (client_id, principal_id, tenant_id, scopes, status, modified_on)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (client_id, principal_id)
		 DO UPDATE SET scopes = EXCLUDED.scopes, status = EXCLUDED.status, modified_on = EXCLUDED.modified_on`,
		consent.ClientID, consent.PrincipalID, consent.TenantID,
		consent.Scopes, consent.Status, consent.ModifiedOn)
	if err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}
	return nil
}

// Invalidate implements ConsentRepository.Invalidate
func (r *PostgresConsentRepository) Invalidate(ctx context.Context, clientID, principalID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE consents SET status = $1, modified_on = now()
		 WHERE client_id = $2 AND principal_id = $3`,
		StatusInvalidated, clientID, principalID)
	if err != nil {
		return fmt.Errorf("failed to invalidate consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("consent", clientID+"/"+principalID)
	}
	return nil
}

// InvalidateByClientID implements ConsentRepository.InvalidateByClientID
func (r *PostgresConsentRepository) InvalidateByClientID(ctx context.Context, tenantID int, clientID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE consents SET status = $1, modified_on = now()
		 WHERE tenant_id = $2 AND client_id = $3 AND status = $4`,
		StatusInvalidated, tenantID, clientID, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate client consents: %w", err)
	}
	return tag.RowsAffected(), nil
}
