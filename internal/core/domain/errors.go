package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any state mutation.
	ErrValidation = errors.New("validation failed")
	// ErrDenied is the uniform authentication failure. It never says which check failed.
	ErrDenied = errors.New("access denied")
	// ErrForbidden reports an authenticated caller lacking the role or ownership required.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound reports a missing entity on lifecycle paths.
	ErrNotFound = errors.New("not found")
	// ErrExpired reports a challenge or key past its validity window.
	ErrExpired = errors.New("expired")
	// ErrLocked reports that the challenge attempt ceiling was reached.
	ErrLocked = errors.New("locked")
	// ErrImmutabilityViolation is returned for any attempt to mutate a persisted audit entry.
	ErrImmutabilityViolation = errors.New("audit entries are immutable")
	// ErrDependencyUnavailable reports a failed store or ledger write.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrConflict reports a lost race or a uniqueness clash.
	ErrConflict = errors.New("conflict")
)

// ValidationError carries the offending field for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets callers match the error with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ChallengeMismatchError reports a wrong challenge code together with the attempts left.
type ChallengeMismatchError struct {
	Remaining int
}

func (e *ChallengeMismatchError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.Remaining)
}

func (e *ChallengeMismatchError) Unwrap() error {
	return ErrDenied
}

// ErrEntropyUnavailable reports that the rotation key source failed and no fallback is configured.
var ErrEntropyUnavailable = fmt.Errorf("entropy source unavailable: %w", ErrDependencyUnavailable)
