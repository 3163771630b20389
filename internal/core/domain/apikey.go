package domain

import (
	"sort"
	"strings"
	"time"
)

// Scope is a capability tag attached to an API key.
type Scope string

const (
	ScopeReadData   Scope = "read:data"
	ScopeWriteData  Scope = "write:data"
	ScopeDeleteData Scope = "delete:data"
)

// DefaultKeyValidity is the validity window granted on issue and on rotation.
const DefaultKeyValidity = 30 * 24 * time.Hour

var knownScopes = map[Scope]struct{}{
	ScopeReadData:   {},
	ScopeWriteData:  {},
	ScopeDeleteData: {},
}

// ParseScopes validates, deduplicates and sorts the requested scopes.
// An empty request yields the read-only default.
func ParseScopes(raw []string) ([]Scope, error) {
	if len(raw) == 0 {
		return []Scope{ScopeReadData}, nil
	}

	seen := make(map[Scope]struct{}, len(raw))
	scopes := make([]Scope, 0, len(raw))
	for _, item := range raw {
		scope := Scope(strings.TrimSpace(item))
		if _, ok := knownScopes[scope]; !ok {
			return nil, NewValidationError("scopes", "unknown scope "+string(scope))
		}
		if _, dup := seen[scope]; dup {
			continue
		}
		seen[scope] = struct{}{}
		scopes = append(scopes, scope)
	}

	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes, nil
}

// ScopeStrings converts scopes for storage and wire use.
func ScopeStrings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

// KeyStatus is the derived lifecycle state reported by listings.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "Active"
	KeyStatusExpired KeyStatus = "Expired"
	KeyStatusRevoked KeyStatus = "Revoked"
)

// APIKey is a machine credential. Only ciphertext and fingerprint of the secret are stored.
type APIKey struct {
	ID          string
	OwnerID     string
	Name        string
	CipherText  string
	IV          string
	Fingerprint string
	Scopes      []Scope
	ExpiresAt   time.Time
	IsActive    bool
	CreatedAt   time.Time
	RotatedAt   *time.Time
}

// Usable reports whether the key may authenticate at the supplied moment.
func (k APIKey) Usable(at time.Time) bool {
	return k.IsActive && at.Before(k.ExpiresAt)
}

// Status derives the listing status.
func (k APIKey) Status(at time.Time) KeyStatus {
	switch {
	case !k.IsActive:
		return KeyStatusRevoked
	case !at.Before(k.ExpiresAt):
		return KeyStatusExpired
	default:
		return KeyStatusActive
	}
}

// HasScope reports whether the key carries the scope.
func (k APIKey) HasScope(scope Scope) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// APIKeyMetadata is the listing projection. It never carries secret material.
type APIKeyMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	Scopes      []Scope   `json:"scopes"`
	Status      KeyStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Metadata projects the key for listings.
func (k APIKey) Metadata(at time.Time) APIKeyMetadata {
	return APIKeyMetadata{
		ID:          k.ID,
		Name:        k.Name,
		Fingerprint: k.Fingerprint,
		Scopes:      k.Scopes,
		Status:      k.Status(at),
		CreatedAt:   k.CreatedAt,
		ExpiresAt:   k.ExpiresAt,
	}
}

// MachinePrincipal is the result of a successful API key authentication.
type MachinePrincipal struct {
	KeyID   string
	OwnerID string
	KeyName string
	Scopes  []Scope
}

// HasScope reports whether the authenticated key carries the scope.
func (p MachinePrincipal) HasScope(scope Scope) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
