package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditAction tags the kind of security event an entry records.
type AuditAction string

const (
	ActionUserRegistered         AuditAction = "USER_REGISTERED"
	ActionLoginFailed            AuditAction = "LOGIN_FAILED"
	ActionChallengeIssued        AuditAction = "MFA_CHALLENGE_ISSUED"
	ActionMFAFailed              AuditAction = "MFA_FAILED"
	ActionMFALocked              AuditAction = "MFA_LOCKED"
	ActionLoginSuccess           AuditAction = "LOGIN_SUCCESS"
	ActionLogout                 AuditAction = "LOGOUT"
	ActionKeyIssued              AuditAction = "KEY_ISSUED"
	ActionKeyRotated             AuditAction = "KEY_ROTATED"
	ActionKeyDeleted             AuditAction = "KEY_DELETED"
	ActionKeyRecovered           AuditAction = "KEY_RECOVERED"
	ActionAPIAccess              AuditAction = "API_ACCESS"
	ActionAccessDenied           AuditAction = "ACCESS_DENIED"
	ActionLogsExported           AuditAction = "LOGS_EXPORTED"
	ActionRoleChanged            AuditAction = "ROLE_CHANGED"
	ActionIdentityDeleted        AuditAction = "IDENTITY_DELETED"
	ActionAccessRequestSubmitted AuditAction = "ACCESS_REQUEST_SUBMITTED"
	ActionAccessRequestApproved  AuditAction = "ACCESS_REQUEST_APPROVED"
	ActionAccessRequestRejected  AuditAction = "ACCESS_REQUEST_REJECTED"
)

// AuditDetails is the per-action payload. Each action has exactly one concrete type so the
// canonical form of an entry is reproducible after a storage round trip.
type AuditDetails interface {
	AuditAction() AuditAction
}

type UserRegisteredDetails struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (UserRegisteredDetails) AuditAction() AuditAction { return ActionUserRegistered }

type LoginFailedDetails struct {
	Email string `json:"email"`
}

func (LoginFailedDetails) AuditAction() AuditAction { return ActionLoginFailed }

type ChallengeIssuedDetails struct {
	Email         string `json:"email"`
	ExpiresInSecs int64  `json:"expires_in_secs"`
}

func (ChallengeIssuedDetails) AuditAction() AuditAction { return ActionChallengeIssued }

type MFAFailedDetails struct {
	Email        string `json:"email"`
	AttemptCount int    `json:"attempt_count"`
	Remaining    int    `json:"remaining"`
}

func (MFAFailedDetails) AuditAction() AuditAction { return ActionMFAFailed }

// Challenge rejection reasons recorded with MFA_LOCKED.
const (
	ChallengeRejectMissing   = "missing"
	ChallengeRejectExpired   = "expired"
	ChallengeRejectExhausted = "attempts_exhausted"
)

type MFALockedDetails struct {
	Email        string `json:"email"`
	Reason       string `json:"reason"`
	AttemptCount int    `json:"attempt_count"`
}

func (MFALockedDetails) AuditAction() AuditAction { return ActionMFALocked }

type LoginSuccessDetails struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (LoginSuccessDetails) AuditAction() AuditAction { return ActionLoginSuccess }

type LogoutDetails struct {
	TokenID string `json:"token_id"`
	Revoked bool   `json:"revoked"`
}

func (LogoutDetails) AuditAction() AuditAction { return ActionLogout }

type KeyIssuedDetails struct {
	KeyID        string  `json:"key_id"`
	KeyName      string  `json:"key_name"`
	Scopes       []Scope `json:"scopes"`
	ValidityDays int     `json:"validity_days"`
}

func (KeyIssuedDetails) AuditAction() AuditAction { return ActionKeyIssued }

type KeyRotatedDetails struct {
	KeyID         string `json:"key_id"`
	KeyName       string `json:"key_name"`
	EntropySource string `json:"entropy_source"`
}

func (KeyRotatedDetails) AuditAction() AuditAction { return ActionKeyRotated }

type KeyDeletedDetails struct {
	KeyID   string `json:"key_id"`
	KeyName string `json:"key_name"`
}

func (KeyDeletedDetails) AuditAction() AuditAction { return ActionKeyDeleted }

type KeyRecoveredDetails struct {
	KeyID   string `json:"key_id"`
	OwnerID string `json:"owner_id"`
}

func (KeyRecoveredDetails) AuditAction() AuditAction { return ActionKeyRecovered }

type APIAccessDetails struct {
	KeyID    string `json:"key_id"`
	KeyName  string `json:"key_name"`
	Resource string `json:"resource"`
}

func (APIAccessDetails) AuditAction() AuditAction { return ActionAPIAccess }

type AccessDeniedDetails struct {
	Reason     string     `json:"reason"`
	Resource   string     `json:"resource,omitempty"`
	Capability Capability `json:"capability,omitempty"`
}

func (AccessDeniedDetails) AuditAction() AuditAction { return ActionAccessDenied }

type LogsExportedDetails struct {
	EntryCount     int `json:"entry_count"`
	CorruptedCount int `json:"corrupted_count"`
}

func (LogsExportedDetails) AuditAction() AuditAction { return ActionLogsExported }

type RoleChangedDetails struct {
	TargetID string `json:"target_id"`
	From     Role   `json:"from"`
	To       Role   `json:"to"`
}

func (RoleChangedDetails) AuditAction() AuditAction { return ActionRoleChanged }

type IdentityDeletedDetails struct {
	TargetID    string `json:"target_id"`
	KeysRemoved int    `json:"keys_removed"`
}

func (IdentityDeletedDetails) AuditAction() AuditAction { return ActionIdentityDeleted }

type AccessRequestSubmittedDetails struct {
	RequestID     string `json:"request_id"`
	RequestedRole Role   `json:"requested_role"`
	CurrentRole   Role   `json:"current_role"`
}

func (AccessRequestSubmittedDetails) AuditAction() AuditAction { return ActionAccessRequestSubmitted }

// AccessRequestDecisionDetails records an approval or a rejection; the action follows the decision.
type AccessRequestDecisionDetails struct {
	RequestID     string              `json:"request_id"`
	RequesterID   string              `json:"requester_id"`
	RequestedRole Role                `json:"requested_role"`
	Decision      AccessRequestStatus `json:"decision"`
}

func (d AccessRequestDecisionDetails) AuditAction() AuditAction {
	if d.Decision == AccessRequestApproved {
		return ActionAccessRequestApproved
	}
	return ActionAccessRequestRejected
}

// DecodeAuditDetails restores the concrete details type for a stored action.
func DecodeAuditDetails(action AuditAction, raw []byte) (AuditDetails, error) {
	var target AuditDetails
	switch action {
	case ActionUserRegistered:
		target = &UserRegisteredDetails{}
	case ActionLoginFailed:
		target = &LoginFailedDetails{}
	case ActionChallengeIssued:
		target = &ChallengeIssuedDetails{}
	case ActionMFAFailed:
		target = &MFAFailedDetails{}
	case ActionMFALocked:
		target = &MFALockedDetails{}
	case ActionLoginSuccess:
		target = &LoginSuccessDetails{}
	case ActionLogout:
		target = &LogoutDetails{}
	case ActionKeyIssued:
		target = &KeyIssuedDetails{}
	case ActionKeyRotated:
		target = &KeyRotatedDetails{}
	case ActionKeyDeleted:
		target = &KeyDeletedDetails{}
	case ActionKeyRecovered:
		target = &KeyRecoveredDetails{}
	case ActionAPIAccess:
		target = &APIAccessDetails{}
	case ActionAccessDenied:
		target = &AccessDeniedDetails{}
	case ActionLogsExported:
		target = &LogsExportedDetails{}
	case ActionRoleChanged:
		target = &RoleChangedDetails{}
	case ActionIdentityDeleted:
		target = &IdentityDeletedDetails{}
	case ActionAccessRequestSubmitted:
		target = &AccessRequestSubmittedDetails{}
	case ActionAccessRequestApproved, ActionAccessRequestRejected:
		target = &AccessRequestDecisionDetails{}
	default:
		return nil, fmt.Errorf("decode audit details: unknown action %q", action)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode audit details for %s: %w", action, err)
		}
	}

	return derefDetails(target), nil
}

func derefDetails(d AuditDetails) AuditDetails {
	switch v := d.(type) {
	case *UserRegisteredDetails:
		return *v
	case *LoginFailedDetails:
		return *v
	case *ChallengeIssuedDetails:
		return *v
	case *MFAFailedDetails:
		return *v
	case *MFALockedDetails:
		return *v
	case *LoginSuccessDetails:
		return *v
	case *LogoutDetails:
		return *v
	case *KeyIssuedDetails:
		return *v
	case *KeyRotatedDetails:
		return *v
	case *KeyDeletedDetails:
		return *v
	case *KeyRecoveredDetails:
		return *v
	case *APIAccessDetails:
		return *v
	case *AccessDeniedDetails:
		return *v
	case *LogsExportedDetails:
		return *v
	case *RoleChangedDetails:
		return *v
	case *IdentityDeletedDetails:
		return *v
	case *AccessRequestSubmittedDetails:
		return *v
	case *AccessRequestDecisionDetails:
		return *v
	}
	return d
}

// AuditDraft is what callers hand to the ledger. The action is taken from the details type.
type AuditDraft struct {
	ActorID      *string
	ActorDisplay string
	IPAddress    *string
	Details      AuditDetails
}

// AuditEntry is a persisted, signed ledger record.
type AuditEntry struct {
	ID                 string       `json:"id"`
	Action             AuditAction  `json:"action"`
	ActorID            *string      `json:"actor_id"`
	ActorDisplay       string       `json:"actor_display"`
	IPAddress          *string      `json:"ip_address,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
	Details            AuditDetails `json:"details"`
	IntegritySignature string       `json:"integrity_signature"`
}

type canonicalEntry struct {
	ID           string          `json:"id"`
	Action       AuditAction     `json:"action"`
	ActorID      *string         `json:"actor_id"`
	ActorDisplay string          `json:"actor_display"`
	IPAddress    *string         `json:"ip_address"`
	Timestamp    string          `json:"timestamp"`
	Details      json.RawMessage `json:"details"`
}

// Canonical returns the deterministic serialization the integrity signature is computed over.
// Field order is fixed by canonicalEntry; the timestamp is rendered in UTC.
func (e AuditEntry) Canonical() ([]byte, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return nil, fmt.Errorf("canonicalize audit details: %w", err)
	}

	return json.Marshal(canonicalEntry{
		ID:           e.ID,
		Action:       e.Action,
		ActorID:      e.ActorID,
		ActorDisplay: e.ActorDisplay,
		IPAddress:    e.IPAddress,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		Details:      details,
	})
}

// SortOrder selects the ledger traversal direction.
type SortOrder string

const (
	SortNewestFirst SortOrder = "desc"
	SortOldestFirst SortOrder = "asc"
)

// AuditFilter narrows ledger queries. Zero values mean "no constraint".
type AuditFilter struct {
	ActorID *string
	Action  AuditAction
	Since   *time.Time
	Until   *time.Time
	Order   SortOrder
	Limit   int
	Offset  int
}

// AuditExport is a full ledger export with a signature over the exported sequence.
type AuditExport struct {
	Entries            []AuditEntry `json:"entries"`
	ExportedAt         time.Time    `json:"exported_at"`
	CorruptedCount     int          `json:"corrupted_count"`
	IntegritySignature string       `json:"integrity_signature"`
}
