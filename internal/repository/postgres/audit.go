package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

var auditColumns = []string{
	"id",
	"action",
	"actor_id",
	"actor_display",
	"ip_address",
	"occurred_at",
	"details",
	"integrity_signature",
}

// AuditRepository is the append-only ledger table. It never issues UPDATE or DELETE.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	if tx == nil {
		return r
	}
	return &AuditRepository{exec: tx, builder: r.builder}
}

// Insert appends a signed entry.
func (r *AuditRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	stmt, args, err := r.builder.Insert(auditEntriesTable).
		Columns(auditColumns...).
		Values(
			entry.ID,
			string(entry.Action),
			nullableString(entry.ActorID),
			entry.ActorDisplay,
			nullableString(entry.IPAddress),
			entry.Timestamp,
			details,
			entry.IntegritySignature,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit entry sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", mapError(err))
	}
	return nil
}

// Query reads entries matching filter. Limit defaults to 50 and is capped at 500 per page.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := r.builder.Select(auditColumns...).From(auditEntriesTable)

	if filter.ActorID != nil {
		query = query.Where(squirrel.Eq{"actor_id": *filter.ActorID})
	}
	if filter.Action != "" {
		query = query.Where(squirrel.Eq{"action": string(filter.Action)})
	}
	if filter.Since != nil {
		query = query.Where(squirrel.GtOrEq{"occurred_at": *filter.Since})
	}
	if filter.Until != nil {
		query = query.Where(squirrel.Lt{"occurred_at": *filter.Until})
	}

	if filter.Order == domain.SortOldestFirst {
		query = query.OrderBy("occurred_at ASC", "id ASC")
	} else {
		query = query.OrderBy("occurred_at DESC", "id DESC")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	query = query.Limit(uint64(limit))
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query audit entries sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry   domain.AuditEntry
			action  string
			details []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&action,
			&entry.ActorID,
			&entry.ActorDisplay,
			&entry.IPAddress,
			&entry.Timestamp,
			&details,
			&entry.IntegritySignature,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.Action = domain.AuditAction(action)
		decoded, err := domain.DecodeAuditDetails(entry.Action, details)
		if err != nil {
			return nil, err
		}
		entry.Details = decoded
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

// Update always fails: ledger entries are immutable.
func (r *AuditRepository) Update(context.Context, domain.AuditEntry) error {
	return domain.ErrImmutabilityViolation
}

// Delete always fails: ledger entries are immutable.
func (r *AuditRepository) Delete(context.Context, string) error {
	return domain.ErrImmutabilityViolation
}
