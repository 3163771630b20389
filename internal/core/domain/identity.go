package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Role is the fixed enumeration of identity roles.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleDeveloper Role = "Developer"
	RoleAuditor   Role = "Auditor"
	RoleNewbie    Role = "Newbie"
)

// DefaultRole is assigned on self-registration. Clients never choose it.
const DefaultRole = RoleNewbie

var knownRoles = map[Role]struct{}{
	RoleAdmin:     {},
	RoleDeveloper: {},
	RoleAuditor:   {},
	RoleNewbie:    {},
}

// ParseRole accepts a role only from the fixed enumeration (case-insensitive input).
func ParseRole(raw string) (Role, error) {
	trimmed := strings.TrimSpace(raw)
	for role := range knownRoles {
		if strings.EqualFold(string(role), trimmed) {
			return role, nil
		}
	}
	return "", NewValidationError("role", "unknown role")
}

// Valid reports whether the role belongs to the enumeration.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// Identity is a human operator persisted in the identity store.
type Identity struct {
	ID             string
	DisplayName    string
	Email          string
	CredentialHash string
	Role           Role
	CreatedAt      time.Time
}

// IdentitySummary is the public projection of an Identity. It never carries the credential hash.
type IdentitySummary struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary projects the identity without its credential hash.
func (i Identity) Summary() IdentitySummary {
	return IdentitySummary{
		ID:          i.ID,
		DisplayName: i.DisplayName,
		Email:       i.Email,
		Role:        i.Role,
		CreatedAt:   i.CreatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes and checks the address shape.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", NewValidationError("email", "email is required")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", NewValidationError("email", "email is malformed")
	}
	return normalized, nil
}

// PasswordContext carries identity fields the strength check should penalise.
type PasswordContext struct {
	DisplayName string
	Email       string
}
