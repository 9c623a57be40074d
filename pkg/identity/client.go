package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tendant/simple-clients/pkg/errors"
)

// DefaultAuthCookieName is the portal authentication cookie forwarded on
// every identity service call
const DefaultAuthCookieName = "asc_auth_key"

// Profile holds the subset of a portal user profile needed for
// client response enrichment
type Profile struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	AvatarSmall string `json:"avatarSmall"`
}

// DisplayName returns "First Last" with surrounding whitespace trimmed
func (p *Profile) DisplayName() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", p.FirstName, p.LastName))
}

// Tenant describes the portal tenant resolved for the current request
type Tenant struct {
	TenantID    int    `json:"tenantId"`
	TenantAlias string `json:"tenantAlias"`
	Timezone    string `json:"timeZone"`
}

// envelope is the portal API response wrapper
type envelope struct {
	Response json.RawMessage `json:"response"`
}

// Client is an HTTP client for the portal identity service. Profile
// lookups are best-effort; tenant and admin resolution are
// security-determining and retried with backoff.
type Client struct {
	httpClient  *http.Client
	cookieName  string
	callTimeout time.Duration
	maxRetries  uint64
}

// Option configures the identity client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCookieName overrides the auth cookie name
func WithCookieName(name string) Option {
	return func(c *Client) {
		c.cookieName = name
	}
}

// WithCallTimeout sets the per-call timeout applied to every lookup
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// WithMaxRetries sets the retry budget for security-determining calls
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a new identity service client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		cookieName:  DefaultAuthCookieName,
		callTimeout: 3 * time.Second,
		maxRetries:  3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetProfile fetches a user profile by email from the portal people API.
// Failures are returned to the caller as-is; the enrichment layer decides
// whether they are fatal (they are not).
func (c *Client) GetProfile(ctx context.Context, host, authCookie, principalID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/api/2.0/people/email?email=%s", strings.TrimRight(host, "/"), url.QueryEscape(principalID))

	var profile Profile
	if err := c.get(ctx, endpoint, authCookie, &profile); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// GetTenant resolves the tenant for the forwarded auth cookie. Transient
// failures are retried a bounded number of times with exponential backoff
// before surfacing ErrCodeUpstreamUnavailable: a request without a tenant
// cannot proceed.
func (c *Client) GetTenant(ctx context.Context, host, authCookie string) (*Tenant, error) {
	endpoint := fmt.Sprintf("%s/api/2.0/portal", strings.TrimRight(host, "/"))

	var tenant Tenant
	err := c.retry(ctx, func() error {
		return c.get(ctx, endpoint, authCookie, &tenant)
	})
	if err != nil {
		return nil, errors.UpstreamUnavailable(err, "get tenant")
	}
	return &tenant, nil
}

// Self is the profile of the principal behind the auth cookie
type Self struct {
	Profile
	IsAdmin bool `json:"isAdmin"`
}

// GetSelf resolves the principal behind the forwarded auth cookie.
// Retried like GetTenant: without a principal the request cannot proceed.
func (c *Client) GetSelf(ctx context.Context, host, authCookie string) (*Self, error) {
	endpoint := fmt.Sprintf("%s/api/2.0/people/@self", strings.TrimRight(host, "/"))

	var self Self
	err := c.retry(ctx, func() error {
		return c.get(ctx, endpoint, authCookie, &self)
	})
	if err != nil {
		return nil, errors.UpstreamUnavailable(err, "get self")
	}
	return &self, nil
}

// GetAdmin reports whether the cookie's principal is a portal administrator
func (c *Client) GetAdmin(ctx context.Context, host, authCookie string) (bool, error) {
	self, err := c.GetSelf(ctx, host, authCookie)
	if err != nil {
		return false, err
	}
	return self.IsAdmin, nil
}

// get performs a single GET against the portal API with the auth cookie
// attached and the per-call timeout applied
func (c *Client) get(ctx context.Context, endpoint, authCookie string, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: c.cookieName, Value: authCookie})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call identity service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Not transient, retries would only repeat the rejection
		return backoff.Permanent(fmt.Errorf("identity request rejected with status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity request failed with status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse identity response: %w", err)
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("failed to parse identity response payload: %w", err)
	}
	return nil
}

// retry runs op with bounded exponential backoff, honoring ctx cancellation
func (c *Client) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		slog.Warn("Retrying identity service call", "err", err, "next_attempt_in", next)
	})
}
