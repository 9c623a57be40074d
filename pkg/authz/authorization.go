package authz

import (
	"time"
)

// Authorization is a live grant record binding a client to a principal.
// Records are created by the authorization server; this service only
// consumes and revokes them.
type Authorization struct {
	ClientID    string
	PrincipalID string
	TenantID    int
	IssuedOn    time.Time
	Metadata    map[string]string
}
