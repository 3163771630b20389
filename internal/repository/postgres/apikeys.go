package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/repository"
)

var apiKeyColumns = []string{
	"id",
	"owner_id",
	"name",
	"cipher_text",
	"iv",
	"fingerprint",
	"scopes",
	"expires_at",
	"is_active",
	"created_at",
	"rotated_at",
}

// APIKeyRepository implements port.APIKeyRepository using PostgreSQL.
type APIKeyRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAPIKeyRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAPIKeyRepository(exec pgExecutor) *APIKeyRepository {
	return &APIKeyRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *APIKeyRepository) WithTx(tx pgx.Tx) *APIKeyRepository {
	if tx == nil {
		return r
	}
	return &APIKeyRepository{exec: tx, builder: r.builder}
}

// Create inserts a new key. A fingerprint collision yields repository.ErrConflict.
func (r *APIKeyRepository) Create(ctx context.Context, key domain.APIKey) error {
	stmt, args, err := r.builder.Insert(apiKeysTable).
		Columns(apiKeyColumns...).
		Values(
			key.ID,
			key.OwnerID,
			key.Name,
			key.CipherText,
			key.IV,
			key.Fingerprint,
			domain.ScopeStrings(key.Scopes),
			key.ExpiresAt,
			key.IsActive,
			key.CreatedAt,
			nullableTime(key.RotatedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert api key sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert api key: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves a key by identifier.
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByFingerprint resolves a presented secret's digest to its key.
func (r *APIKeyRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.APIKey, error) {
	return r.getOne(ctx, squirrel.Eq{"fingerprint": fingerprint})
}

func (r *APIKeyRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.APIKey, error) {
	stmt, args, err := r.builder.Select(apiKeyColumns...).
		From(apiKeysTable).
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select api key sql: %w", err)
	}

	key, err := scanAPIKey(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select api key: %w", err)
	}
	return key, nil
}

// ListByOwner returns an owner's keys newest first.
func (r *APIKeyRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.APIKey, error) {
	stmt, args, err := r.builder.Select(apiKeyColumns...).
		From(apiKeysTable).
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list api keys sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]domain.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}

	return keys, nil
}

// Rotate swaps secret material only while the stored fingerprint still equals the previous one.
// The old fingerprint stops resolving in the same statement that makes the new one valid.
func (r *APIKeyRepository) Rotate(ctx context.Context, rotation port.KeyRotation) error {
	stmt, args, err := r.builder.Update(apiKeysTable).
		Set("fingerprint", rotation.Fingerprint).
		Set("cipher_text", rotation.CipherText).
		Set("iv", rotation.IV).
		Set("expires_at", rotation.ExpiresAt).
		Set("rotated_at", rotation.RotatedAt).
		Where(squirrel.Eq{"id": rotation.KeyID}).
		Where(squirrel.Eq{"fingerprint": rotation.PreviousFingerprint}).
		Where(squirrel.Eq{"is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rotate api key sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

// Delete removes a key.
func (r *APIKeyRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(apiKeysTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete api key sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByOwner removes every key of an owner and reports how many were removed.
func (r *APIKeyRepository) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	stmt, args, err := r.builder.Delete(apiKeysTable).
		Where(squirrel.Eq{"owner_id": ownerID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete owner api keys sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete owner api keys: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var (
		key       domain.APIKey
		scopes    []string
		rotatedAt *time.Time
	)
	if err := row.Scan(
		&key.ID,
		&key.OwnerID,
		&key.Name,
		&key.CipherText,
		&key.IV,
		&key.Fingerprint,
		&scopes,
		&key.ExpiresAt,
		&key.IsActive,
		&key.CreatedAt,
		&rotatedAt,
	); err != nil {
		return nil, err
	}

	key.Scopes = make([]domain.Scope, len(scopes))
	for i, s := range scopes {
		key.Scopes[i] = domain.Scope(s)
	}
	key.RotatedAt = rotatedAt
	return &key, nil
}
