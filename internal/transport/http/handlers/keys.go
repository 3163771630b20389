package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
	"github.com/KVLNK12305/Akira/internal/usecase"
)

const secretShownOnceWarning = "store this secret now, it cannot be retrieved again"

// KeyService is the API key lifecycle as seen by the HTTP layer.
type KeyService interface {
	Issue(ctx context.Context, in usecase.IssueKeyInput) (*usecase.IssuedKey, error)
	List(ctx context.Context, ownerID string) ([]domain.APIKeyMetadata, error)
	Rotate(ctx context.Context, callerID, keyID string, ip *string) (*usecase.IssuedKey, error)
	Revoke(ctx context.Context, callerID, keyID string, ip *string) error
}

// KeyHandler exposes API key management for the key owner.
type KeyHandler struct {
	keys KeyService
}

// NewKeyHandler constructs KeyHandler.
func NewKeyHandler(keys KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// RegisterRoutes binds key routes. The group must already require a session.
func (h *KeyHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("", h.issue)
	r.POST("/:id/rotate", h.rotate)
	r.DELETE("/:id", h.revoke)
}

func (h *KeyHandler) list(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	keys, err := h.keys.List(c.Request.Context(), principal.IdentityID)
	if err != nil {
		respondError(c, err)
		return
	}
	if keys == nil {
		keys = []domain.APIKeyMetadata{}
	}

	c.JSON(http.StatusOK, KeyListResponse{Keys: keys})
}

func (h *KeyHandler) issue(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	var req IssueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}

	issued, err := h.keys.Issue(c.Request.Context(), usecase.IssueKeyInput{
		CallerID:  principal.IdentityID,
		Name:      req.Name,
		Scopes:    req.Scopes,
		IPAddress: middleware.ClientIP(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, issuedKeyResponse(issued))
}

func (h *KeyHandler) rotate(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	issued, err := h.keys.Rotate(c.Request.Context(), principal.IdentityID, c.Param("id"), middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issuedKeyResponse(issued))
}

func (h *KeyHandler) revoke(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	if err := h.keys.Revoke(c.Request.Context(), principal.IdentityID, c.Param("id"), middleware.ClientIP(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "key revoked"})
}

func issuedKeyResponse(issued *usecase.IssuedKey) IssuedKeyResponse {
	return IssuedKeyResponse{
		ID:        issued.KeyID,
		Name:      issued.Name,
		Secret:    issued.Secret,
		Scopes:    issued.Scopes,
		ExpiresAt: issued.ExpiresAt,
		Warning:   secretShownOnceWarning,
	}
}
