package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/infra/logger"
	"github.com/KVLNK12305/Akira/internal/infra/security"
)

// APIKeyHeader carries a machine credential when the Authorization header is not used.
const APIKeyHeader = "X-API-Key"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// SessionAuthenticator resolves session tokens to operators.
type SessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, raw string) (*domain.SessionPrincipal, error)
}

// KeyAuthenticator resolves presented API keys and enforces key scopes.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, presented string, ip *string, resource string) (*domain.MachinePrincipal, error)
	RequireScope(ctx context.Context, principal *domain.MachinePrincipal, scope domain.Scope, ip *string) error
}

// RequireSession validates the bearer session token and stores the principal on the context.
func RequireSession(auth SessionAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing or malformed authorization header"))
			return
		}

		principal, err := auth.AuthenticateSession(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		setSessionPrincipal(c, principal)

		c.Next()
	}
}

// RequireAPIKey authenticates a machine credential and checks that it carries scope.
// Every attempt, successful or not, is audited by the authenticator.
func RequireAPIKey(auth KeyAuthenticator, scope domain.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := ClientIP(c)

		principal, err := auth.Authenticate(ctx, presentedKey(c), ip, c.Request.URL.Path)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if err := auth.RequireScope(ctx, principal, scope, ip); err != nil {
			abortWithError(c, err)
			return
		}

		setMachinePrincipal(c, principal)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func presentedKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(APIKeyHeader)); key != "" {
		return key
	}
	if token, ok := bearerToken(c.GetHeader("Authorization")); ok && security.HasSecretFormat(token) {
		return token
	}
	return ""
}

// abortWithError keeps authentication failures uniform. Store outages surface as 503 so a
// failed audit write is never reported as a plain denial.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrDependencyUnavailable):
		logger.WithContext(c.Request.Context()).Error("authentication dependency failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "service unavailable"))
	case errors.Is(err, domain.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "insufficient scope"))
	case errors.Is(err, domain.ErrDenied):
		c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "access denied"))
	default:
		logger.WithContext(c.Request.Context()).Error("authentication failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
	}
}
