package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-clients/pkg/consent"
	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/ratelimit"
	"github.com/tendant/simple-clients/pkg/tenant"
)

// ConsentResponse is one granted consent in the principal's overview
type ConsentResponse struct {
	ClientID   string    `json:"client_id"`
	ClientName string    `json:"client_name"`
	ClientLogo string    `json:"client_logo,omitempty"`
	Scopes     []string  `json:"scopes"`
	ModifiedOn time.Time `json:"modified_on"`
}

// ErrorResponse is the error body shared by all endpoints.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handle serves the consent endpoints for the authenticated principal
type Handle struct {
	consentService *consent.ConsentService
	guard          *ratelimit.Guard
}

// NewHandle creates a new consent API handler. The guard is applied
// around both consent operations; a nil guard runs them unprotected.
func NewHandle(consentService *consent.ConsentService, guard *ratelimit.Guard) *Handle {
	return &Handle{
		consentService: consentService,
		guard:          guard,
	}
}

// guarded routes op through the handler's guard, keyed by the calling
// tenant and principal.
func (h *Handle) guarded(ctx context.Context, op func(ctx context.Context) error) error {
	if h.guard == nil {
		return op(ctx)
	}
	return h.guard.Do(ctx, ratelimit.RequestKey(ctx), op)
}

// RegisterRoutes registers the consent routes. Any authenticated user
// of the tenant may call these; each principal only ever sees and
// revokes their own consents.
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Get("/consents", h.ListConsents)
	r.Delete("/{clientID}/revoke", h.RevokeConsent)
}

// ListConsents handles GET /consents - the caller's active consents
func (h *Handle) ListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	principal, _ := tenant.PrincipalFromContext(ctx)

	var consents []*consent.ClientConsent
	err := h.guarded(ctx, func(ctx context.Context) error {
		var opErr error
		consents, opErr = h.consentService.GetAllByPrincipal(ctx, ten, principal.Email)
		return opErr
	})
	if err != nil {
		slog.Error("Failed to list consents", "tenant_id", ten.TenantID, "principal", principal.ID, "err", err)
		renderError(w, r, err)
		return
	}

	data := make([]ConsentResponse, 0, len(consents))
	for _, c := range consents {
		data = append(data, ConsentResponse{
			ClientID:   c.ClientID,
			ClientName: c.ClientName,
			ClientLogo: c.ClientLogo,
			Scopes:     c.Scopes,
			ModifiedOn: c.ModifiedOn,
		})
	}
	render.JSON(w, r, data)
}

// RevokeConsent handles DELETE /{clientID}/revoke - withdraw the
// caller's own consent for one client. The client itself is untouched.
func (h *Handle) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ten, _ := tenant.FromContext(ctx)
	principal, _ := tenant.PrincipalFromContext(ctx)
	clientID := chi.URLParam(r, "clientID")

	if err := h.guarded(ctx, func(ctx context.Context) error {
		return h.consentService.RevokeConsent(ctx, ten, clientID, principal.Email)
	}); err != nil {
		slog.Error("Failed to revoke consent",
			"tenant_id", ten.TenantID, "client_id", clientID, "principal", principal.ID, "err", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]bool{"success": true})
}

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
