package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
	"github.com/KVLNK12305/Akira/internal/usecase"
)

// AuthService is the login state machine as seen by the HTTP layer.
type AuthService interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*usecase.LoginStarted, error)
	BeginLogin(ctx context.Context, email, password string, ip *string) (*usecase.LoginStarted, error)
	VerifyChallenge(ctx context.Context, email, code string, ip *string) (*usecase.AuthenticatedSession, error)
	EndSession(ctx context.Context, principal *domain.SessionPrincipal, ip *string) error
	CurrentIdentity(ctx context.Context, identityID string) (domain.IdentitySummary, error)
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds the public login flow and the session-guarded routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireSession gin.HandlerFunc) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.POST("/verify", h.verify)
	r.POST("/logout", requireSession, h.logout)
	r.GET("/me", requireSession, h.me)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}

	started, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		IPAddress:   middleware.ClientIP(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, challengeResponse(started))
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}

	started, err := h.auth.BeginLogin(c.Request.Context(), req.Email, req.Password, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, challengeResponse(started))
}

func (h *AuthHandler) verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}

	session, err := h.auth.VerifyChallenge(c.Request.Context(), req.Email, req.Code, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
		Identity:    session.Identity,
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	if err := h.auth.EndSession(c.Request.Context(), principal, middleware.ClientIP(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

func (h *AuthHandler) me(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	identity, err := h.auth.CurrentIdentity(c.Request.Context(), principal.IdentityID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, identity)
}

func challengeResponse(started *usecase.LoginStarted) ChallengeResponse {
	return ChallengeResponse{
		Message:   "verification code sent",
		Identity:  started.Identity,
		ExpiresAt: started.ExpiresAt,
	}
}
