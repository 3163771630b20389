package domain

import (
	"strings"
	"time"
)

// AccessRequestStatus tracks the review state of a role elevation request.
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "PENDING"
	AccessRequestApproved AccessRequestStatus = "APPROVED"
	AccessRequestRejected AccessRequestStatus = "REJECTED"
)

// MinAccessRequestReason is the shortest justification accepted.
const MinAccessRequestReason = 10

// AccessRequest asks an administrator to elevate the requester's role.
type AccessRequest struct {
	ID            string              `json:"id"`
	RequesterID   string              `json:"requester_id"`
	RequestedRole Role                `json:"requested_role"`
	Reason        string              `json:"reason"`
	Status        AccessRequestStatus `json:"status"`
	ReviewedBy    *string             `json:"reviewed_by,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	ReviewedAt    *time.Time          `json:"reviewed_at,omitempty"`
}

// ParseDecision accepts only the two terminal review states.
func ParseDecision(raw string) (AccessRequestStatus, error) {
	switch AccessRequestStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case AccessRequestApproved:
		return AccessRequestApproved, nil
	case AccessRequestRejected:
		return AccessRequestRejected, nil
	default:
		return "", NewValidationError("status", "status must be APPROVED or REJECTED")
	}
}

// Requestable reports whether a role may be asked for through an access request.
func (r Role) Requestable() bool {
	return r == RoleDeveloper || r == RoleAuditor || r == RoleAdmin
}
