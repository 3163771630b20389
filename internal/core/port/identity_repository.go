package port

import (
	"context"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// IdentityRepository exposes persistence behavior for identities. Emails are stored normalized.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	List(ctx context.Context) ([]domain.Identity, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.Identity, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	Delete(ctx context.Context, id string) error
}
