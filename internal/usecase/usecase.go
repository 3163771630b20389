package usecase

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/repository"
)

const tracerName = "github.com/KVLNK12305/Akira/internal/usecase"

var tracer = otel.Tracer(tracerName)

var (
	// ErrKeyInactive reports an attempt to rotate a deactivated key.
	ErrKeyInactive = fmt.Errorf("api key is inactive: %w", domain.ErrForbidden)
	// ErrSelfModification reports an administrator acting on their own identity.
	ErrSelfModification = fmt.Errorf("cannot modify own identity: %w", domain.ErrForbidden)
)

var domainErrors = []error{
	domain.ErrValidation,
	domain.ErrDenied,
	domain.ErrForbidden,
	domain.ErrNotFound,
	domain.ErrExpired,
	domain.ErrLocked,
	domain.ErrImmutabilityViolation,
	domain.ErrDependencyUnavailable,
	domain.ErrConflict,
}

// translate maps store errors onto the domain taxonomy. Domain errors pass through untouched.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	case isDomainError(err):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDependencyUnavailable, err)
	}
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type noopMetrics struct{}

func (noopMetrics) AuditAppended(domain.AuditAction) {}
func (noopMetrics) KeyAuthentication(string)         {}
func (noopMetrics) LoginOutcome(string, string)      {}

func metricsOrNoop(m port.SecurityMetrics) port.SecurityMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
