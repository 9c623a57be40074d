// Package audit provides middleware for auditing client management requests
package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tendant/ce-client/ce"

	"github.com/tendant/simple-clients/pkg/tenant"
)

// Config holds the configuration for the audit middleware
type Config struct {
	// Source specifies the source of the audit events
	Source string
	// EventType specifies the type of audit events
	EventType string
	// EventClient is the client used to send audit events
	EventClient *ce.EventClient
}

// Middleware handles HTTP request auditing
type Middleware struct {
	config Config
}

// NewMiddleware creates a new audit middleware instance
func NewMiddleware(config Config) (*Middleware, error) {
	if config.EventClient == nil {
		return nil, fmt.Errorf("event client is required")
	}

	if config.Source == "" {
		config.Source = "simple-clients"
	}

	if config.EventType == "" {
		config.EventType = "audit.identity.clients"
	}

	return &Middleware{
		config: config,
	}, nil
}

// AuditEvent represents an audit event
type AuditEvent struct {
	TenantID    int
	PrincipalID string
	URI         string
	Method      string
	Timestamp   time.Time
	Metadata    map[string]interface{}
}

// AuditMutations is an HTTP middleware that audits every mutating
// request (create, update, activation, rotation, delete, revoke).
// Reads pass through unrecorded.
func (m *Middleware) AuditMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		event := AuditEvent{
			URI:       r.RequestURI,
			Method:    r.Method,
			Timestamp: time.Now(),
		}
		if ten, ok := tenant.FromContext(ctx); ok {
			event.TenantID = ten.TenantID
		}
		if principal, ok := tenant.PrincipalFromContext(ctx); ok {
			event.PrincipalID = principal.ID
		}

		// Audit the request asynchronously
		go m.auditRequest(ctx, event)

		// Continue with the request
		next.ServeHTTP(w, r)
	})
}

// auditRequest sends an audit event asynchronously
func (m *Middleware) auditRequest(ctx context.Context, event AuditEvent) {
	m.config.EventClient.SendEventAsync(ce.EventGeneric{
		Source: m.config.Source,
		Type:   m.config.EventType,
		Data: map[string]interface{}{
			"tenant":    event.TenantID,
			"principal": event.PrincipalID,
			"uri":       event.URI,
			"method":    event.Method,
			"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
			"metadata":  event.Metadata,
		},
	})
}

// WithMetadata adds metadata to the audit event
func (e AuditEvent) WithMetadata(key string, value interface{}) AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
