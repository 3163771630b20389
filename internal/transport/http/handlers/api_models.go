package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error             string `json:"error"`
	TraceID           string `json:"trace_id,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest defines the self-registration payload. The role is never accepted from clients.
type RegisterRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// LoginRequest is the first-factor payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// VerifyRequest is the second-factor payload.
type VerifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// ChallengeResponse is returned once the first factor succeeded. No session exists yet.
type ChallengeResponse struct {
	Message   string                 `json:"message"`
	Identity  domain.IdentitySummary `json:"identity"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// SessionResponse carries the session token minted by a correct challenge.
type SessionResponse struct {
	AccessToken string                 `json:"access_token"`
	TokenType   string                 `json:"token_type"`
	ExpiresAt   time.Time              `json:"expires_at"`
	Identity    domain.IdentitySummary `json:"identity"`
}

// IssueKeyRequest defines the API key issue payload.
type IssueKeyRequest struct {
	Name   string   `json:"name" binding:"required"`
	Scopes []string `json:"scopes"`
}

// IssuedKeyResponse returns a plaintext secret. It is the only time the secret is shown.
type IssuedKeyResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Secret    string         `json:"secret"`
	Scopes    []domain.Scope `json:"scopes"`
	ExpiresAt time.Time      `json:"expires_at"`
	Warning   string         `json:"warning"`
}

// KeyListResponse wraps key metadata.
type KeyListResponse struct {
	Keys []domain.APIKeyMetadata `json:"keys"`
}

// AuditLogResponse wraps audit entries.
type AuditLogResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// IdentityListResponse wraps identity summaries.
type IdentityListResponse struct {
	Identities []domain.IdentitySummary `json:"identities"`
}

// ChangeRoleRequest carries the new role for an identity.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// AccessRequestCreateRequest opens an elevation request.
type AccessRequestCreateRequest struct {
	RequestedRole string `json:"requested_role" binding:"required"`
	Reason        string `json:"reason" binding:"required"`
}

// AccessRequestReviewRequest carries an administrator decision.
type AccessRequestReviewRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// AccessRequestListResponse wraps pending requests.
type AccessRequestListResponse struct {
	Requests []domain.AccessRequest `json:"requests"`
}

// SecretReportResponse is the machine-only payload behind the read:data scope.
type SecretReportResponse struct {
	Status   string         `json:"status"`
	Data     string         `json:"data"`
	Identity string         `json:"identity"`
	Scopes   []domain.Scope `json:"scopes"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
