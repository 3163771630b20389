package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/repository"
)

var accessRequestColumns = []string{
	"id",
	"requester_id",
	"requested_role",
	"reason",
	"status",
	"reviewed_by",
	"created_at",
	"reviewed_at",
}

// AccessRequestRepository implements port.AccessRequestRepository using PostgreSQL.
type AccessRequestRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccessRequestRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccessRequestRepository(exec pgExecutor) *AccessRequestRepository {
	return &AccessRequestRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccessRequestRepository) WithTx(tx pgx.Tx) *AccessRequestRepository {
	if tx == nil {
		return r
	}
	return &AccessRequestRepository{exec: tx, builder: r.builder}
}

// Create inserts a request. The partial unique index on pending requests yields repository.ErrConflict.
func (r *AccessRequestRepository) Create(ctx context.Context, request domain.AccessRequest) error {
	stmt, args, err := r.builder.Insert(accessRequestsTable).
		Columns(accessRequestColumns...).
		Values(
			request.ID,
			request.RequesterID,
			string(request.RequestedRole),
			request.Reason,
			string(request.Status),
			nullableString(request.ReviewedBy),
			request.CreatedAt,
			nullableTime(request.ReviewedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert access request sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert access request: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a request by identifier.
func (r *AccessRequestRepository) GetByID(ctx context.Context, id string) (*domain.AccessRequest, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetPendingByRequester returns the requester's open request, if any.
func (r *AccessRequestRepository) GetPendingByRequester(ctx context.Context, requesterID string) (*domain.AccessRequest, error) {
	return r.getOne(ctx, squirrel.Eq{"requester_id": requesterID, "status": string(domain.AccessRequestPending)})
}

func (r *AccessRequestRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.AccessRequest, error) {
	stmt, args, err := r.builder.Select(accessRequestColumns...).
		From(accessRequestsTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select access request sql: %w", err)
	}

	request, err := scanAccessRequest(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select access request: %w", err)
	}
	return request, nil
}

// ListByStatus returns requests in status, oldest first.
func (r *AccessRequestRepository) ListByStatus(ctx context.Context, status domain.AccessRequestStatus) ([]domain.AccessRequest, error) {
	stmt, args, err := r.builder.Select(accessRequestColumns...).
		From(accessRequestsTable).
		Where(squirrel.Eq{"status": string(status)}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list access requests sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	requests := make([]domain.AccessRequest, 0)
	for rows.Next() {
		request, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access requests: %w", err)
	}

	return requests, nil
}

// Resolve records the decision on a still-pending request.
func (r *AccessRequestRepository) Resolve(ctx context.Context, id string, status domain.AccessRequestStatus, reviewerID string, at time.Time) error {
	stmt, args, err := r.builder.Update(accessRequestsTable).
		Set("status", string(status)).
		Set("reviewed_by", reviewerID).
		Set("reviewed_at", at).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": string(domain.AccessRequestPending)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build resolve access request sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("resolve access request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

func scanAccessRequest(row pgx.Row) (*domain.AccessRequest, error) {
	var (
		request       domain.AccessRequest
		requestedRole string
		status        string
	)
	if err := row.Scan(
		&request.ID,
		&request.RequesterID,
		&requestedRole,
		&request.Reason,
		&status,
		&request.ReviewedBy,
		&request.CreatedAt,
		&request.ReviewedAt,
	); err != nil {
		return nil, err
	}
	request.RequestedRole = domain.Role(requestedRole)
	request.Status = domain.AccessRequestStatus(status)
	return &request, nil
}
