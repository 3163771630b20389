package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/repository"
)

var identityColumns = []string{"id", "display_name", "email", "credential_hash", "role", "created_at"}

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	return &IdentityRepository{exec: exec, builder: newBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *IdentityRepository) WithTx(tx pgx.Tx) *IdentityRepository {
	if tx == nil {
		return r
	}
	return &IdentityRepository{exec: tx, builder: r.builder}
}

// Create inserts a new identity. A duplicate email yields repository.ErrConflict.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity) error {
	stmt, args, err := r.builder.Insert(identitiesTable).
		Columns(identityColumns...).
		Values(
			identity.ID,
			identity.DisplayName,
			identity.Email,
			identity.CredentialHash,
			string(identity.Role),
			identity.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert identity: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves an identity by identifier.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves an identity by its normalized email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

func (r *IdentityRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.Identity, error) {
	stmt, args, err := r.builder.Select(identityColumns...).
		From(identitiesTable).
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	identity, err := scanIdentity(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if mapped := mapError(err); mapped == repository.ErrNotFound {
			return nil, mapped
		}
		return nil, fmt.Errorf("select identity: %w", err)
	}
	return identity, nil
}

// List returns every identity ordered by creation.
func (r *IdentityRepository) List(ctx context.Context) ([]domain.Identity, error) {
	return r.list(ctx, nil)
}

// ListByRole returns identities holding role.
func (r *IdentityRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.Identity, error) {
	return r.list(ctx, squirrel.Eq{"role": string(role)})
}

func (r *IdentityRepository) list(ctx context.Context, pred squirrel.Sqlizer) ([]domain.Identity, error) {
	query := r.builder.Select(identityColumns...).From(identitiesTable).OrderBy("created_at ASC")
	if pred != nil {
		query = query.Where(pred)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list identities sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]domain.Identity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, nil
}

// UpdateRole sets the role of an identity.
func (r *IdentityRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	stmt, args, err := r.builder.Update(identitiesTable).
		Set("role", string(role)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update identity role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update identity role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an identity. Owned API keys are removed by the caller in the same transaction.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(identitiesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete identity sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var (
		identity domain.Identity
		role     string
	)
	if err := row.Scan(
		&identity.ID,
		&identity.DisplayName,
		&identity.Email,
		&identity.CredentialHash,
		&role,
		&identity.CreatedAt,
	); err != nil {
		return nil, err
	}
	identity.Role = domain.Role(role)
	return &identity, nil
}
