package domain

import "time"

// SessionPrincipal is the caller resolved from a valid session token.
type SessionPrincipal struct {
	IdentityID string
	Role       Role
	TokenID    string
	ExpiresAt  time.Time
}
