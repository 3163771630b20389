package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
)

// DataHandler serves machine-only resources behind API key authentication.
type DataHandler struct{}

// NewDataHandler constructs DataHandler.
func NewDataHandler() *DataHandler {
	return &DataHandler{}
}

// SecretReport answers an authenticated machine. The route must be guarded by RequireAPIKey.
func (h *DataHandler) SecretReport(c *gin.Context) {
	principal, ok := middleware.MachinePrincipal(c)
	if !ok {
		respondError(c, domain.ErrDenied)
		return
	}

	c.JSON(http.StatusOK, SecretReportResponse{
		Status:   "success",
		Data:     "confidential report for machine clients",
		Identity: "authenticated as " + principal.KeyName,
		Scopes:   principal.Scopes,
	})
}
