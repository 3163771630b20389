package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
)

// IdentityService is identity administration as seen by the HTTP layer.
type IdentityService interface {
	ListIdentities(ctx context.Context, callerID string, ip *string) ([]domain.IdentitySummary, error)
	ChangeRole(ctx context.Context, callerID, targetID, rawRole string, ip *string) (domain.IdentitySummary, error)
	DeleteIdentity(ctx context.Context, callerID, targetID string, ip *string) error
}

// IdentityHandler exposes administrator-only identity routes.
type IdentityHandler struct {
	identities IdentityService
}

// NewIdentityHandler constructs IdentityHandler.
func NewIdentityHandler(identities IdentityService) *IdentityHandler {
	return &IdentityHandler{identities: identities}
}

// RegisterRoutes binds identity routes. The group must already require a session.
func (h *IdentityHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.PUT("/:id/role", h.changeRole)
	r.DELETE("/:id", h.remove)
}

func (h *IdentityHandler) list(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	identities, err := h.identities.ListIdentities(c.Request.Context(), principal.IdentityID, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if identities == nil {
		identities = []domain.IdentitySummary{}
	}

	c.JSON(http.StatusOK, IdentityListResponse{Identities: identities})
}

func (h *IdentityHandler) changeRole(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}

	updated, err := h.identities.ChangeRole(c.Request.Context(), principal.IdentityID, c.Param("id"), req.Role, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *IdentityHandler) remove(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	if err := h.identities.DeleteIdentity(c.Request.Context(), principal.IdentityID, c.Param("id"), middleware.ClientIP(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "identity deleted"})
}
