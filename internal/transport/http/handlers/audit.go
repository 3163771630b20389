package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
)

// AuditService is the role-gated read side of the ledger.
type AuditService interface {
	MyAuditLog(ctx context.Context, callerID string, limit int) ([]domain.AuditEntry, error)
	ExportAuditLog(ctx context.Context, callerID string, ip *string) (*domain.AuditExport, error)
}

// AuditHandler exposes the caller's own log and the signed export.
type AuditHandler struct {
	audit AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes binds audit routes. The group must already require a session.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.mine)
	r.GET("/export", h.export)
}

func (h *AuditHandler) mine(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, domain.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.audit.MyAuditLog(c.Request.Context(), principal.IdentityID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	c.JSON(http.StatusOK, AuditLogResponse{Entries: entries})
}

func (h *AuditHandler) export(c *gin.Context) {
	principal, ok := middleware.SessionPrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	export, err := h.audit.ExportAuditLog(c.Request.Context(), principal.IdentityID, middleware.ClientIP(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=audit-export.json")
	c.JSON(http.StatusOK, export)
}
