package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
)

const (
	exportPageSize   = 500
	defaultOwnLogCap = 50
	maxOwnLogCap     = 500
)

// AuditService exposes the role-gated read paths of the ledger.
type AuditService struct {
	identities port.IdentityRepository
	ledger     *AuditLedger
	signer     port.PayloadSigner
	now        func() time.Time

	defaultLimit int
	maxLimit     int
}

// NewAuditService wires the export and self-service log readers.
func NewAuditService(identities port.IdentityRepository, ledger *AuditLedger, signer port.PayloadSigner) *AuditService {
	return &AuditService{
		identities:   identities,
		ledger:       ledger,
		signer:       signer,
		now:          time.Now,
		defaultLimit: defaultOwnLogCap,
		maxLimit:     maxOwnLogCap,
	}
}

// WithClock overrides the time source.
func (s *AuditService) WithClock(now func() time.Time) *AuditService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithLimits bounds MyAuditLog. Non-positive values keep the defaults.
func (s *AuditService) WithLimits(defaultLimit, maxLimit int) *AuditService {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

type exportManifest struct {
	ExportedAt string   `json:"exported_at"`
	Signatures []string `json:"signatures"`
}

func manifestPayload(entries []domain.AuditEntry, exportedAt time.Time) ([]byte, error) {
	sigs := make([]string, len(entries))
	for i, e := range entries {
		sigs[i] = e.IntegritySignature
	}
	return json.Marshal(exportManifest{
		ExportedAt: exportedAt.UTC().Format(time.RFC3339Nano),
		Signatures: sigs,
	})
}

// ExportAuditLog returns the whole ledger oldest first with a signature over the exported sequence.
// The export itself is recorded as LOGS_EXPORTED.
func (s *AuditService) ExportAuditLog(ctx context.Context, callerID string, ip *string) (*domain.AuditExport, error) {
	ctx, span := tracer.Start(ctx, "AuditService.ExportAuditLog")
	defer span.End()

	caller, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapAuditExport, "audit:export", ip)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0)
	for offset := 0; ; offset += exportPageSize {
		page, err := s.ledger.Query(ctx, domain.AuditFilter{
			Order:  domain.SortOldestFirst,
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	exportedAt := s.now().UTC()
	payload, err := manifestPayload(entries, exportedAt)
	if err != nil {
		return nil, fmt.Errorf("encode export manifest: %w", err)
	}

	export := &domain.AuditExport{
		Entries:            entries,
		ExportedAt:         exportedAt,
		CorruptedCount:     s.ledger.VerifyAll(entries),
		IntegritySignature: s.signer.Sign(payload),
	}

	if _, err := s.ledger.Append(ctx, actorDraft(caller, ip, domain.LogsExportedDetails{
		EntryCount:     len(entries),
		CorruptedCount: export.CorruptedCount,
	})); err != nil {
		return nil, err
	}

	return export, nil
}

// VerifyExport checks the export signature and every contained entry.
func (s *AuditService) VerifyExport(export domain.AuditExport) bool {
	payload, err := manifestPayload(export.Entries, export.ExportedAt)
	if err != nil {
		return false
	}
	if !s.signer.Verify(payload, export.IntegritySignature) {
		return false
	}
	return s.ledger.VerifyAll(export.Entries) == 0
}

// MyAuditLog returns the caller's own entries newest first.
func (s *AuditService) MyAuditLog(ctx context.Context, callerID string, limit int) ([]domain.AuditEntry, error) {
	if _, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapAuditReadOwn, "audit:me", nil); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = s.defaultLimit
	case limit > s.maxLimit:
		limit = s.maxLimit
	}
	return s.ledger.Query(ctx, domain.AuditFilter{
		ActorID: &callerID,
		Order:   domain.SortNewestFirst,
		Limit:   limit,
	})
}
