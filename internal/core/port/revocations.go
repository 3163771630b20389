package port

import (
	"context"
	"time"
)

// SessionRevocationStore is the logout denylist. An entry only has to outlive the
// token it shadows, so implementations may drop it once until has passed.
type SessionRevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}
