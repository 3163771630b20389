package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/infra/logger"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// domainErrorCases is ordered: a denial whose audit write failed carries both sentinels and
// must surface as unavailable.
var domainErrorCases = []ErrorCase{
	{Err: domain.ErrEntropyUnavailable, Status: http.StatusServiceUnavailable, Message: "key source unavailable"},
	{Err: domain.ErrDependencyUnavailable, Status: http.StatusServiceUnavailable, Message: "service unavailable"},
	{Err: domain.ErrImmutabilityViolation, Status: http.StatusInternalServerError, Message: "audit entries are immutable"},
	{Err: domain.ErrLocked, Status: http.StatusLocked, Message: "too many attempts, log in again"},
	{Err: domain.ErrExpired, Status: http.StatusUnauthorized, Message: "code expired, log in again"},
	{Err: domain.ErrDenied, Status: http.StatusUnauthorized, Message: "access denied"},
	{Err: domain.ErrForbidden, Status: http.StatusForbidden, Message: "forbidden"},
	{Err: domain.ErrNotFound, Status: http.StatusNotFound, Message: "not found"},
	{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "conflict"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			respond(c, err, cs.Status, cs.Message)
			return
		}
	}

	respond(c, err, fallbackStatus, fallbackMessage)
}

// respondError maps domain errors. Validation and challenge mismatches carry extra detail.
func respondError(c *gin.Context, err error) {
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, validation.Error()))
			return
		}

		var mismatch *domain.ChallengeMismatchError
		if errors.As(err, &mismatch) {
			body := NewErrorResponse(c, "invalid code")
			remaining := mismatch.Remaining
			body.RemainingAttempts = &remaining
			c.JSON(http.StatusUnauthorized, body)
			return
		}

		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request"))
			return
		}
	}

	RespondWithMappedError(c, err, domainErrorCases, http.StatusInternalServerError, "internal error")
}

func respond(c *gin.Context, err error, status int, message string) {
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("request failed",
			zap.Int("status", status),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
	c.JSON(status, NewErrorResponse(c, message))
}

func badPayload(c *gin.Context) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
}
