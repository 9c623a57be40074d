package ratelimit

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/tendant/simple-clients/pkg/errors"
	"github.com/tendant/simple-clients/pkg/tenant"
)

// Middleware applies a guard to every request on a route, keyed by the
// authenticated tenant and principal. Requests that fail either limiter
// check get a 429 before the handler runs.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Allow(r.Context(), RequestKey(r.Context())); err != nil {
			slog.Warn("Rate limit exceeded",
				"guard", g.name,
				"path", r.URL.Path,
				"method", r.Method,
			)

			var e *errors.Error
			if stderrors.As(err, &e) {
				if retryAfter, ok := e.Details["retry_after"]; ok {
					w.Header().Set("Retry-After", retryAfter.(string))
				}
			} else {
				e = errors.Wrap(err, errors.ErrCodeRateLimited, "rate limit exceeded")
			}

			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, map[string]interface{}{
				"error":   string(e.Code),
				"message": e.Message,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestKey builds the limiter key from the request context. Tenant
// and principal are resolved by the tenant middleware before any guard
// runs; an unauthenticated request shares a single anonymous bucket.
func RequestKey(ctx context.Context) string {
	at, okT := tenant.FromContext(ctx)
	p, okP := tenant.PrincipalFromContext(ctx)
	if !okT || !okP {
		return "anonymous"
	}
	return strconv.Itoa(at.TenantID) + ":" + p.ID
}
