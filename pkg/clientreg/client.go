package clientreg

import (
	"time"
)

// Token endpoint authentication methods (RFC 7591). Public PKCE
// clients use none, confidential clients post their secret.
const (
	AuthMethodClientSecretPost = "client_secret_post"
	AuthMethodNone             = "none"
)

// Client represents a registered third-party application scoped to a
// tenant. ClientID is immutable after creation. Invalidated is terminal:
// an invalidated client stays disabled forever and rejects every
// mutation; the record is kept for audit.
type Client struct {
	ClientID             string
	ClientSecret         string
	Name                 string
	Description          string
	WebsiteURL           string
	TermsURL             string
	PolicyURL            string
	LogoURL              string
	AuthenticationMethod string
	TenantID             int
	TenantURL            string
	RedirectURIs         []string
	LogoutRedirectURIs   []string
	Scopes               []string
	Enabled              bool
	Invalidated          bool
	CreatedOn            time.Time
	CreatedBy            string
	ModifiedOn           time.Time
	ModifiedBy           string
}

// HasScope reports whether the client was registered with the given scope
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// CreateClientParams represents parameters for registering a new client
type CreateClientParams struct {
	Name                 string
	Description          string
	WebsiteURL           string
	TermsURL             string
	PolicyURL            string
	LogoURL              string
	AuthenticationMethod string
	RedirectURIs         []string
	LogoutRedirectURIs   []string
	Scopes               []string
}

// UpdateClientParams represents a partial update of mutable client
// metadata. Nil pointers and nil slices mean "leave unchanged".
// Credentials, scopes and tenant binding are not updatable here.
type UpdateClientParams struct {
	Name               *string
	Description        *string
	WebsiteURL         *string
	TermsURL           *string
	PolicyURL          *string
	LogoURL            *string
	RedirectURIs       []string
	LogoutRedirectURIs []string
}

// Page is one page of a tenant's clients with the total count across
// all pages
type Page struct {
	Data  []*Client
	Page  int
	Limit int
	Total int64
}
