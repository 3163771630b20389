package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
)

// AccessRequestService is the elevation workflow as seen by the HTTP layer.
type AccessRequestService interface {
	Submit(ctx context.Context, callerID, rawRole, reason string, ip *string) (*domain.AccessRequest, error)
	ListPending(ctx context.Context, callerID string, ip *string) ([]domain.AccessRequest, error)
	Process(ctx context.Context, callerID, requestID, rawDecision string, ip *string) (*domain.AccessRequest, error)
}

// AccessRequestHandler exposes elevation requests and their review.
type AccessRequestHandler struct {
	requests AccessRequestService
}

// NewAccessRequestHandler constructs AccessRequestHandler.
func NewAccessRequestHandler(requests AccessRequestService) *AccessRequestHandler {
	return &AccessRequestHandler{requests: requests}
}

// RegisterRoutes binds access request routes. The group must already require a session.
func (h *AccessRequestHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.submit)
	r.GET("", h.listPending)
	r.PUT("/:id", h.process)
}

func (h *AccessRequestHandler) submit(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	var req AccessRequestCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}

	created, err := h.requests.Submit(c.Request.Context(), principal.IdentityID, req.RequestedRole, req.Reason, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *AccessRequestHandler) listPending(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	pending, err := h.requests.ListPending(c.Request.Context(), principal.IdentityID, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if pending == nil {
		pending = []domain.AccessRequest{}
	}

	c.JSON(http.StatusOK, AccessRequestListResponse{Requests: pending})
}

func (h *AccessRequestHandler) process(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	var req AccessRequestReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}

	reviewed, err := h.requests.Process(c.Request.Context(), principal.IdentityID, c.Param("id"), req.Decision, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, reviewed)
}
