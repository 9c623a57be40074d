package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Task kinds handled by the worker
const (
	// KindClientCascade deletes a client's authorizations and
	// invalidates its consents after the client was soft-deleted
	KindClientCascade = "client.cascade"

	// KindPrincipalRevocation deletes a principal's authorizations for
	// one client after their consent was revoked
	KindPrincipalRevocation = "authorization.revoke_principal"
)

// Status of a queued task
type Status string

const (
	StatusPending Status = "PENDING"
	StatusDone    Status = "DONE"
	// StatusFailed marks a task that exhausted its attempts; the row is
	// kept so operators can inspect and requeue it
	StatusFailed Status = "FAILED"
)

// Task is a persisted unit of background work. Tasks survive process
// restarts and are executed at least once.
type Task struct {
	ID            uuid.UUID
	Kind          string
	Payload       []byte
	Status        Status
	RetryCount    int
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// ClientCascadePayload is the payload of a KindClientCascade task
type ClientCascadePayload struct {
	TenantID int    `json:"tenant_id"`
	ClientID string `json:"client_id"`
}

// PrincipalRevocationPayload is the payload of a KindPrincipalRevocation task
type PrincipalRevocationPayload struct {
	TenantID    int    `json:"tenant_id"`
	ClientID    string `json:"client_id"`
	PrincipalID string `json:"principal_id"`
}
