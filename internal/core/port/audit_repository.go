package port

import (
	"context"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// AuditRepository is the append-only ledger store. Update and Delete exist only to
// reject mutation at the data-access boundary with domain.ErrImmutabilityViolation.
type AuditRepository interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
	Update(ctx context.Context, entry domain.AuditEntry) error
	Delete(ctx context.Context, id string) error
}
