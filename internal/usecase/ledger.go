package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
)

const anonymousActor = "anonymous"

// AuditLedger signs and appends security events. Entries are never modified once written.
type AuditLedger struct {
	repo    port.AuditRepository
	signer  port.PayloadSigner
	logger  *zap.Logger
	metrics port.SecurityMetrics
	now     func() time.Time
	newID   func() string
}

// NewAuditLedger constructs a ledger over repo using signer for integrity signatures.
func NewAuditLedger(repo port.AuditRepository, signer port.PayloadSigner, logger *zap.Logger) *AuditLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLedger{
		repo:    repo,
		signer:  signer,
		logger:  logger,
		metrics: noopMetrics{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithClock overrides the time source.
func (l *AuditLedger) WithClock(now func() time.Time) *AuditLedger {
	if now != nil {
		l.now = now
	}
	return l
}

// WithMetrics attaches outcome counters.
func (l *AuditLedger) WithMetrics(m port.SecurityMetrics) *AuditLedger {
	l.metrics = metricsOrNoop(m)
	return l
}

// WithRepository returns a copy bound to repo, typically a transaction-scoped repository.
func (l *AuditLedger) WithRepository(repo port.AuditRepository) *AuditLedger {
	clone := *l
	clone.repo = repo
	return &clone
}

// Append signs and persists the draft. Any persistence failure is returned as ErrDependencyUnavailable
// and must fail the caller's operation.
func (l *AuditLedger) Append(ctx context.Context, draft domain.AuditDraft) (domain.AuditEntry, error) {
	if draft.Details == nil {
		return domain.AuditEntry{}, domain.NewValidationError("details", "audit details are required")
	}

	action := draft.Details.AuditAction()
	ctx, span := tracer.Start(ctx, "AuditLedger.Append")
	defer span.End()
	span.SetAttributes(attribute.String("audit.action", string(action)))

	display := draft.ActorDisplay
	if display == "" {
		display = anonymousActor
	}

	entry := domain.AuditEntry{
		ID:           l.newID(),
		Action:       action,
		ActorID:      draft.ActorID,
		ActorDisplay: display,
		IPAddress:    draft.IPAddress,
		// Postgres keeps microseconds; sign what will be read back.
		Timestamp: l.now().UTC().Truncate(time.Microsecond),
		Details:   draft.Details,
	}

	payload, err := entry.Canonical()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canonicalize")
		return domain.AuditEntry{}, err
	}
	entry.IntegritySignature = l.signer.Sign(payload)

	if err := l.repo.Insert(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert")
		l.logger.Error("audit append failed",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return domain.AuditEntry{}, fmt.Errorf("append audit entry: %w: %w", domain.ErrDependencyUnavailable, err)
	}

	l.metrics.AuditAppended(action)
	return entry, nil
}

// Verify recomputes the signature over the entry's own fields.
func (l *AuditLedger) Verify(entry domain.AuditEntry) bool {
	if entry.Details == nil || entry.Details.AuditAction() != entry.Action {
		return false
	}
	payload, err := entry.Canonical()
	if err != nil {
		return false
	}
	return l.signer.Verify(payload, entry.IntegritySignature)
}

// VerifyAll returns how many entries fail verification.
func (l *AuditLedger) VerifyAll(entries []domain.AuditEntry) int {
	corrupted := 0
	for _, entry := range entries {
		if !l.Verify(entry) {
			corrupted++
			l.logger.Warn("audit entry failed verification",
				zap.String("entry_id", entry.ID),
				zap.String("action", string(entry.Action)),
			)
		}
	}
	return corrupted
}

// Query is read-only retrieval. Newest first unless the filter asks otherwise.
func (l *AuditLedger) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if filter.Order == "" {
		filter.Order = domain.SortNewestFirst
	}
	if filter.Order != domain.SortNewestFirst && filter.Order != domain.SortOldestFirst {
		return nil, domain.NewValidationError("order", "order must be asc or desc")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, domain.NewValidationError("limit", "limit and offset must not be negative")
	}

	entries, err := l.repo.Query(ctx, filter)
	if err != nil {
		return nil, translate("query audit entries", err)
	}
	return entries, nil
}

// Update always fails with ErrImmutabilityViolation.
func (l *AuditLedger) Update(ctx context.Context, entry domain.AuditEntry) error {
	return l.rejectMutation(l.repo.Update(ctx, entry), entry.ID)
}

// Delete always fails with ErrImmutabilityViolation.
func (l *AuditLedger) Delete(ctx context.Context, id string) error {
	return l.rejectMutation(l.repo.Delete(ctx, id), id)
}

func (l *AuditLedger) rejectMutation(err error, id string) error {
	l.logger.Warn("audit mutation rejected", zap.String("entry_id", id))
	if err != nil && !errors.Is(err, domain.ErrImmutabilityViolation) {
		return fmt.Errorf("%w: %w", domain.ErrImmutabilityViolation, err)
	}
	return domain.ErrImmutabilityViolation
}
