package port

import (
	"context"
	"time"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// KeyRotation replaces secret material in place, conditioned on the previous fingerprint.
type KeyRotation struct {
	KeyID               string
	PreviousFingerprint string
	Fingerprint         string
	CipherText          string
	IV                  string
	ExpiresAt           time.Time
	RotatedAt           time.Time
}

// APIKeyRepository persists machine credentials.
type APIKeyRepository interface {
	Create(ctx context.Context, key domain.APIKey) error
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.APIKey, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.APIKey, error)
	// Rotate returns repository.ErrConflict when the stored fingerprint no longer matches.
	Rotate(ctx context.Context, rotation KeyRotation) error
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) (int, error)
}
