package clientreg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-clients/pkg/errors"
)

// PostgresClientRepository implements ClientRepository using PostgreSQL.
// Row-level update guarantees of Postgres provide the per-record
// atomicity the services rely on: a delete racing an update leaves the
// row in one of the two legal states.
type PostgresClientRepository struct {
	db *pgxpool.Pool
}

// NewPostgresClientRepository creates a new PostgreSQL client repository
func NewPostgresClientRepository(db *pgxpool.Pool) (*PostgresClientRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresClientRepository{db: db}, nil
}

const clientColumns = `client_id, client_secret, name, description,
	website_url, terms_url, policy_url, logo_url, authentication_method,
	tenant_id, tenant_url, redirect_uris, logout_redirect_uris, scopes,
	enabled, invalidated, created_on, created_by, modified_on, modified_by`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ClientID, &c.ClientSecret, &c.Name, &c.Description,
		&c.WebsiteURL, &c.TermsURL, &c.PolicyURL, &c.LogoURL, &c.AuthenticationMethod,
		&c.TenantID, &c.TenantURL, &c.RedirectURIs, &c.LogoutRedirectURIs, &c.Scopes,
		&c.Enabled, &c.Invalidated, &c.CreatedOn, &c.CreatedBy, &c.ModifiedOn, &c.ModifiedBy)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClient implements ClientRepository.GetClient
func (r *PostgresClientRepository) GetClient(ctx context.Context, clientID string) (*Client, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = $1`, clientID)

	client, err := scanClient(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("client", clientID)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// GetTenantClient implements ClientRepository.GetTenantClient
func (r *PostgresClientRepository) GetTenantClient(ctx context.Context, tenantID int, clientID string) (*Client, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 AND client_id = $2`,
		tenantID, clientID)

	client, err := scanClient(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("client", clientID)
		}
		return nil, fmt.Errorf("failed to get tenant client: %w", err)
	}
	return client, nil
}

// GetTenantClients implements ClientRepository.GetTenantClients
func (r *PostgresClientRepository) GetTenantClients(ctx context.Context, tenantID, offset, limit int) ([]*Client, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM clients WHERE tenant_id = $1`, tenantID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tenant clients: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+clientColumns+` FROM clients
		 WHERE tenant_id = $1
		 ORDER BY created_on, client_id
		 LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenant clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read client rows: %w", err)
	}
	return clients, total, nil
}

// CreateClient implements ClientRepository.CreateClient
func (r *PostgresClientRepository) CreateClient(ctx context.Context, client *Client) (*Client, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO clients (`+clientColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		client.ClientID, client.ClientSecret, client.Name, client.Description,
		client.WebsiteURL, client.TermsURL, client.PolicyURL, client.LogoURL,
		client.AuthenticationMethod, client.TenantID, client.TenantURL,
		client.RedirectURIs, client.LogoutRedirectURIs, client.Scopes,
		client.Enabled, client.Invalidated, client.CreatedOn, client.CreatedBy,
		client.ModifiedOn, client.ModifiedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// UpdateClient implements ClientRepository.UpdateClient. COALESCE keeps
// columns whose params are nil; invalidated rows are never matched.
func (r *PostgresClientRepository) UpdateClient(ctx context.Context, tenantID int, clientID string, params UpdateClientParams, modifiedBy string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET
			name = COALESCE($1, name),
			description = COALESCE($2, description),
			website_url = COALESCE($3, website_url),
			terms_url = COALESCE($4, terms_url),
			policy_url = COALESCE($5, policy_url),
			logo_url = COALESCE($6, logo_url),
			redirect_uris = COALESCE($7, redirect_uris),
			logout_redirect_uris = COALESCE($8, logout_redirect_uris),
			modified_on = now(),
			modified_by = $9
		 WHERE tenant_id = $10 AND client_id = $11 AND NOT invalidated`,
		params.Name, params.Description, params.WebsiteURL, params.TermsURL,
		params.PolicyURL, params.LogoURL, params.RedirectURIs, params.LogoutRedirectURIs,
		modifiedBy, tenantID, clientID)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("client", clientID)
	}
	return nil
}

// UpdateSecret implements ClientRepository.UpdateSecret
func (r *PostgresClientRepository) UpdateSecret(ctx context.Context, tenantID int, clientID, encryptedSecret, modifiedBy string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET client_secret = $1, modified_on = now(), modified_by = $2
		 WHERE tenant_id = $3 AND client_id = $4 AND NOT invalidated`,
		encryptedSecret, modifiedBy, tenantID, clientID)
	if err != nil {
		return fmt.Errorf("failed to update client secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("client", clientID)
	}
	return nil
}

// ChangeActivation implements ClientRepository.ChangeActivation
func (r *PostgresClientRepository) ChangeActivation(ctx context.Context, tenantID int, clientID string, enabled bool, modifiedBy string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET enabled = $1, modified_on = now(), modified_by = $2
		 WHERE tenant_id = $3 AND client_id = $4 AND NOT invalidated`,
		enabled, modifiedBy, tenantID, clientID)
	if err != nil {
		return fmt.Errorf("failed to change client activation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("client", clientID)
	}
	return nil
}

// Invalidate implements ClientRepository.Invalidate
func (r *PostgresClientRepository) Invalidate(ctx context.Context, tenantID int, clientID string, modifiedBy string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET invalidated = true, enabled = false, modified_on = now(), modified_by = $1
		 WHERE tenant_id = $2 AND client_id = $3`,
		modifiedBy, tenantID, clientID)
	if err != nil {
		return fmt.Errorf("failed to invalidate client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("client", clientID)
	}
	return nil
}
