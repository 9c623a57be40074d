package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/tendant/simple-clients/pkg/clientreg"
	"github.com/tendant/simple-clients/pkg/enrich"
	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/tenant"
)

// CreateClientRequest is the body of POST /clients
type CreateClientRequest struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	WebsiteURL         string   `json:"website_url"`
	TermsURL           string   `json:"terms_url"`
	PolicyURL          string   `json:"policy_url"`
	LogoURL            string   `json:"logo"`
	RedirectURIs       []string `json:"redirect_uris"`
	LogoutRedirectURIs []string `json:"logout_redirect_uris"`
	Scopes             []string `json:"scopes"`
	AllowPKCE          bool     `json:"allow_pkce"`
}

// UpdateClientRequest is the body of PUT /clients/{clientID}. Absent
// fields leave the stored value untouched.
type UpdateClientRequest struct {
	Name               *string  `json:"name,omitempty"`
	Description        *string  `json:"description,omitempty"`
	WebsiteURL         *string  `json:"website_url,omitempty"`
	TermsURL           *string  `json:"terms_url,omitempty"`
	PolicyURL          *string  `json:"policy_url,omitempty"`
	LogoURL            *string  `json:"logo,omitempty"`
	RedirectURIs       []string `json:"redirect_uris,omitempty"`
	LogoutRedirectURIs []string `json:"logout_redirect_uris,omitempty"`
}

// ChangeActivationRequest is the body of PATCH /clients/{clientID}/activation
type ChangeActivationRequest struct {
	Status bool `json:"status"`
}

// ClientResponse is the full management view of a client, including
// its secret. Only tenant administrators ever see it.
type ClientResponse struct {
	ClientID             string    `json:"client_id"`
	ClientSecret         string    `json:"client_secret"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	WebsiteURL           string    `json:"website_url"`
	TermsURL             string    `json:"terms_url"`
	PolicyURL            string    `json:"policy_url"`
	LogoURL              string    `json:"logo"`
	AuthenticationMethod string    `json:"authentication_method"`
	TenantID             int       `json:"tenant"`
	TenantURL            string    `json:"tenant_url"`
	RedirectURIs         []string  `json:"redirect_uris"`
	LogoutRedirectURIs   []string  `json:"logout_redirect_uris"`
	Scopes               []string  `json:"scopes"`
	Enabled              bool      `json:"enabled"`
	Invalidated          bool      `json:"invalidated"`
	CreatedOn            time.Time `json:"created_on"`
	CreatedBy            string    `json:"created_by"`
	ModifiedOn           time.Time `json:"modified_on"`
	ModifiedBy           string    `json:"modified_by"`
	CreatorAvatar        string    `json:"creator_avatar,omitempty"`
	CreatorDisplayName   string    `json:"creator_display_name,omitempty"`
}

// ClientInfoResponse is the consent-screen view of a client: display
// metadata only, never credentials or tenant internals.
type ClientInfoResponse struct {
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	WebsiteURL  string    `json:"website_url"`
	TermsURL    string    `json:"terms_url"`
	PolicyURL   string    `json:"policy_url"`
	LogoURL     string    `json:"logo"`
	Scopes      []string  `json:"scopes"`
	CreatedOn   time.Time `json:"created_on"`
	ModifiedOn  time.Time `json:"modified_on"`
}

// PageResponse is a page of clients plus paging metadata.
type PageResponse struct {
	Data  []ClientResponse `json:"data"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Total int64            `json:"total"`
}

// ErrorResponse is the error body shared by all endpoints.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func toClientResponse(client *clientreg.Client) ClientResponse {
	var resp ClientResponse
	if err := copier.Copy(&resp, client); err != nil {
		slog.Error("Failed to map client to response", "client_id", client.ClientID, "err", err)
	}
	return resp
}

func toEnrichedResponse(client enrich.EnrichedClient) ClientResponse {
	resp := toClientResponse(client.Client)
	resp.CreatorAvatar = client.CreatorAvatar
	resp.CreatorDisplayName = client.CreatorDisplayName
	return resp
}

// tenantLocation resolves the tenant's timezone for timestamp display,
// falling back to UTC when it is absent or unknown
func tenantLocation(ctx context.Context) *time.Location {
	if at, ok := tenant.FromContext(ctx); ok && at.Timezone != "" {
		if loc, err := time.LoadLocation(at.Timezone); err == nil {
			return loc
		}
		slog.Warn("Unknown tenant timezone", "tenant_id", at.TenantID, "timezone", at.Timezone)
	}
	return time.UTC
}

func (resp ClientResponse) inZone(loc *time.Location) ClientResponse {
	resp.CreatedOn = resp.CreatedOn.In(loc)
	resp.ModifiedOn = resp.ModifiedOn.In(loc)
	return resp
}

func (resp ClientInfoResponse) inZone(loc *time.Location) ClientInfoResponse {
	resp.CreatedOn = resp.CreatedOn.In(loc)
	resp.ModifiedOn = resp.ModifiedOn.In(loc)
	return resp
}

func toClientInfoResponse(client *clientreg.Client) ClientInfoResponse {
	var resp ClientInfoResponse
	if err := copier.Copy(&resp, client); err != nil {
		slog.Error("Failed to map client to info response", "client_id", client.ClientID, "err", err)
	}
	return resp
}

// renderError writes a structured error with the HTTP status derived
// from its code.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.Wrap(err, errors.ErrCodeInternal, "internal error")
	}

	render.Status(r, e.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Error:   string(e.Code),
		Message: e.Message,
		Details: e.Details,
	})
}
