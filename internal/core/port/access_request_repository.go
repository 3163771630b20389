package port

import (
	"context"
	"time"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// AccessRequestRepository persists role elevation requests.
type AccessRequestRepository interface {
	Create(ctx context.Context, request domain.AccessRequest) error
	GetByID(ctx context.Context, id string) (*domain.AccessRequest, error)
	GetPendingByRequester(ctx context.Context, requesterID string) (*domain.AccessRequest, error)
	ListByStatus(ctx context.Context, status domain.AccessRequestStatus) ([]domain.AccessRequest, error)
	// Resolve moves a pending request to a terminal status; repository.ErrConflict if it is no longer pending.
	Resolve(ctx context.Context, id string, status domain.AccessRequestStatus, reviewerID string, at time.Time) error
}
