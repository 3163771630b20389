package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/KVLNK12305/Akira/internal/core/port"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Identities     *IdentityRepository
	APIKeys        *APIKeyRepository
	Audit          *AuditRepository
	AccessRequests *AccessRequestRepository

	db txStarter
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(db txStarter) *Repositories {
	return &Repositories{
		Identities:     NewIdentityRepository(db),
		APIKeys:        NewAPIKeyRepository(db),
		Audit:          NewAuditRepository(db),
		AccessRequests: NewAccessRequestRepository(db),
		db:             db,
	}
}

// Stores exposes the pool-bound repositories through the port types.
func (r *Repositories) Stores() port.Stores {
	return port.Stores{
		Identities:     r.Identities,
		APIKeys:        r.APIKeys,
		Audit:          r.Audit,
		AccessRequests: r.AccessRequests,
	}
}

// WithinTx implements port.Transactor. fn receives repositories bound to one transaction,
// which rolls back when fn returns an error or panics.
func (r *Repositories) WithinTx(ctx context.Context, fn func(ctx context.Context, stores port.Stores) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	stores := port.Stores{
		Identities:     r.Identities.WithTx(tx),
		APIKeys:        r.APIKeys.WithTx(tx),
		Audit:          r.Audit.WithTx(tx),
		AccessRequests: r.AccessRequests.WithTx(tx),
	}

	if err := fn(ctx, stores); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
