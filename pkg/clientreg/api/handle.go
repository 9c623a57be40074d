package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-clients/pkg/clientreg"
	"github.com/tendant/simple-clients/pkg/enrich"
	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/ratelimit"
	"github.com/tendant/simple-clients/pkg/rotation"
	"github.com/tendant/simple-clients/pkg/tenant"
)

const (
	defaultPage  = 0
	defaultLimit = 20
)

// Handle serves the client management endpoints
type Handle struct {
	clientService *clientreg.ClientService
	enricher      *enrich.Enricher
	pipeline      *rotation.Pipeline
	guard         *ratelimit.Guard
}

// NewHandle creates a new client management API handler. The guard is
// applied around every management operation; a nil guard runs the
// operations unprotected.
func NewHandle(clientService *clientreg.ClientService, enricher *enrich.Enricher, pipeline *rotation.Pipeline, guard *ratelimit.Guard) *Handle {
	return &Handle{
		clientService: clientService,
		enricher:      enricher,
		pipeline:      pipeline,
		guard:         guard,
	}
}

// guarded routes op through the handler's guard, keyed by the calling
// tenant and principal, so management calls get the limiter checks and
// the bounded retry on transient failures.
func (h *Handle) guarded(ctx context.Context, op func(ctx context.Context) error) error {
	if h.guard == nil {
		return op(ctx)
	}
	return h.guard.Do(ctx, ratelimit.RequestKey(ctx), op)
}

// RegisterRoutes registers the management routes. These must be
// mounted behind the admin-gated tenant middleware.
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListClients)
	r.Post("/", h.CreateClient)
	r.Get("/{clientID}", h.GetClient)
	r.Put("/{clientID}", h.UpdateClient)
	r.Delete("/{clientID}", h.DeleteClient)
	r.Patch("/{clientID}/activation", h.ChangeActivation)
	r.Patch("/{clientID}/regenerate", h.RegenerateSecret)
}

// RegisterInfoRoutes registers the consent-screen routes. Any
// authenticated user of the tenant may call these.
func (h *Handle) RegisterInfoRoutes(r chi.Router) {
	r.Get("/{clientID}/info", h.GetClientInfo)
	r.Get("/{clientID}/public/info", h.GetPublicClientInfo)
}

// ListClients handles GET / - one page of the tenant's clients
func (h *Handle) ListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)

	page, limit, err := pagination(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var result *clientreg.Page
	err = h.guarded(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = h.clientService.GetTenantClients(ctx, ten, page, limit)
		return opErr
	})
	if err != nil {
		slog.Error("Failed to list clients", "tenant_id", ten.TenantID, "err", err)
		renderError(w, r, err)
		return
	}

	enriched := h.enricher.EnrichClients(ctx, tenant.HostFromContext(ctx), tenant.AuthCookieFromContext(ctx), result.Data)
	loc := tenantLocation(ctx)
	data := make([]ClientResponse, 0, len(enriched))
	for _, client := range enriched {
		data = append(data, toEnrichedResponse(client).inZone(loc))
	}

	render.JSON(w, r, PageResponse{
		Data:  data,
		Page:  result.Page,
		Limit: result.Limit,
		Total: result.Total,
	})
}

// CreateClient handles POST / - register a new client
func (h *Handle) CreateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	principal, _ := tenant.PrincipalFromContext(ctx)

	var req CreateClientRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to parse create client request", "err", err)
		renderError(w, r, errors.InvalidArgument("body", "invalid request body"))
		return
	}

	params := clientreg.CreateClientParams{
		Name:                 req.Name,
		Description:          req.Description,
		WebsiteURL:           req.WebsiteURL,
		TermsURL:             req.TermsURL,
		PolicyURL:            req.PolicyURL,
		LogoURL:              req.LogoURL,
		AuthenticationMethod: authenticationMethod(req.AllowPKCE),
		RedirectURIs:         req.RedirectURIs,
		LogoutRedirectURIs:   req.LogoutRedirectURIs,
		Scopes:               req.Scopes,
	}

	var client *clientreg.Client
	err := h.guarded(ctx, func(ctx context.Context) error {
		var opErr error
		client, opErr = h.clientService.CreateClient(ctx, ten, params, principal, tenant.HostFromContext(ctx))
		return opErr
	})
	if err != nil {
		slog.Error("Failed to create client", "tenant_id", ten.TenantID, "err", err)
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toClientResponse(client).inZone(tenantLocation(ctx)))
}

// GetClient handles GET /{clientID} - full management view
func (h *Handle) GetClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	clientID := chi.URLParam(r, "clientID")

	var client *clientreg.Client
	err := h.guarded(ctx, func(ctx context.Context) error {
		var opErr error
		client, opErr = h.clientService.GetTenantClient(ctx, ten, clientID)
		return opErr
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	enriched := h.enricher.EnrichClient(ctx, tenant.HostFromContext(ctx), tenant.AuthCookieFromContext(ctx), client)
	render.JSON(w, r, toEnrichedResponse(enriched).inZone(tenantLocation(ctx)))
}

// GetClientInfo handles GET /{clientID}/info - consent screen view for
// clients of the caller's tenant
func (h *Handle) GetClientInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	clientID := chi.URLParam(r, "clientID")

	client, err := h.clientService.GetTenantClient(ctx, ten, clientID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, toClientInfoResponse(client).inZone(tenantLocation(ctx)))
}

// GetPublicClientInfo handles GET /{clientID}/public/info - consent
// screen view without tenant scoping, for cross-tenant login flows
func (h *Handle) GetPublicClientInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := chi.URLParam(r, "clientID")

	client, err := h.clientService.GetClient(ctx, clientID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, toClientInfoResponse(client).inZone(tenantLocation(ctx)))
}

// UpdateClient handles PUT /{clientID} - partial metadata update
func (h *Handle) UpdateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	principal, _ := tenant.PrincipalFromContext(ctx)
	clientID := chi.URLParam(r, "clientID")

	var req UpdateClientRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to parse update client request", "client_id", clientID, "err", err)
		renderError(w, r, errors.InvalidArgument("body", "invalid request body"))
		return
	}

	params := clientreg.UpdateClientParams{
		Name:               req.Name,
		Description:        req.Description,
		WebsiteURL:         req.WebsiteURL,
		TermsURL:           req.TermsURL,
		PolicyURL:          req.PolicyURL,
		LogoURL:            req.LogoURL,
		RedirectURIs:       req.RedirectURIs,
		LogoutRedirectURIs: req.LogoutRedirectURIs,
	}

	if err := h.guarded(ctx, func(ctx context.Context) error {
		return h.clientService.UpdateClient(ctx, ten, clientID, params, principal)
	}); err != nil {
		slog.Error("Failed to update client", "tenant_id", ten.TenantID, "client_id", clientID, "err", err)
		renderError(w, r, err)
		return
	}

	client, err := h.clientService.GetTenantClient(ctx, ten, clientID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toClientResponse(client).inZone(tenantLocation(ctx)))
}

// DeleteClient handles DELETE /{clientID} - soft delete plus cascade
func (h *Handle) DeleteClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	principal, _ := tenant.PrincipalFromContext(ctx)
	clientID := chi.URLParam(r, "clientID")

	if err := h.guarded(ctx, func(ctx context.Context) error {
		return h.clientService.DeleteClient(ctx, ten, clientID, principal)
	}); err != nil {
		slog.Error("Failed to delete client", "tenant_id", ten.TenantID, "client_id", clientID, "err", err)
		renderError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

// ChangeActivation handles PATCH /{clientID}/activation - enable or
// disable a client. Asking for the state the client is already in is
// rejected so callers notice lost toggles.
func (h *Handle) ChangeActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	principal, _ := tenant.PrincipalFromContext(ctx)
	clientID := chi.URLParam(r, "clientID")

	var req ChangeActivationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, errors.InvalidArgument("body", "invalid request body"))
		return
	}

	var changed bool
	err := h.guarded(ctx, func(ctx context.Context) error {
		var opErr error
		changed, opErr = h.clientService.ChangeActivation(ctx, ten, clientID, req.Status, principal)
		return opErr
	})
	if err != nil {
		slog.Error("Failed to change client activation", "tenant_id", ten.TenantID, "client_id", clientID, "err", err)
		renderError(w, r, err)
		return
	}
	if !changed {
		renderError(w, r, errors.InvalidState(clientID))
		return
	}

	render.JSON(w, r, map[string]bool{"success": true})
}

// RegenerateSecret handles PATCH /{clientID}/regenerate - rotate the
// client secret through the revoke-then-replace pipeline
func (h *Handle) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	principal, _ := tenant.PrincipalFromContext(ctx)
	clientID := chi.URLParam(r, "clientID")

	var secret string
	err := h.guarded(ctx, func(ctx context.Context) error {
		var opErr error
		secret, opErr = h.pipeline.RotateSecret(ctx, ten, clientID, principal)
		return opErr
	})
	if err != nil {
		slog.Error("Failed to regenerate client secret",
			"tenant_id", ten.TenantID, "client_id", clientID,
			"stage", rotation.FailedStage(err), "err", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{
		"client_id":     clientID,
		"client_secret": secret,
	})
}

// pagination parses page and limit query parameters. Range checks are
// done by the service.
func pagination(r *http.Request) (int, int, error) {
	page := defaultPage
	limit := defaultLimit

	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.InvalidArgument("page", "must be an integer")
		}
		page = parsed
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.InvalidArgument("limit", "must be an integer")
		}
		limit = parsed
	}
	return page, limit, nil
}

// authenticationMethod picks the token endpoint auth method for a new
// client. Public PKCE clients authenticate with a code verifier, not a
// secret.
func authenticationMethod(allowPKCE bool) string {
	if allowPKCE {
		return clientreg.AuthMethodNone
	}
	return clientreg.AuthMethodClientSecretPost
}
