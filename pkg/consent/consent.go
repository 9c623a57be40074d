package consent

import (
	"time"
)

// Status of a consent record. Transitions go ACTIVE to INVALIDATED only,
// never back.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInvalidated Status = "INVALIDATED"
)

// Consent records a principal's approval of a client's requested scopes.
// At most one consent exists per (client, principal) pair.
type Consent struct {
	ClientID    string
	PrincipalID string
	TenantID    int
	Scopes      []string
	Status      Status
	ModifiedOn  time.Time
}

// ClientConsent is a consent joined with the display metadata of its
// client, as returned to the principal's consent overview
type ClientConsent struct {
	Consent
	ClientName string
	ClientLogo string
}
