package port

import (
	"context"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// Notifier delivers codes and alerts out of band. Delivery is best effort.
type Notifier interface {
	SendChallenge(ctx context.Context, notification domain.ChallengeNotification) error
	SendAccessRequestAlert(ctx context.Context, notification domain.AccessRequestNotification) error
}
