package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/infra/logger"
)

// LogNotifier writes notifications to the log when no broker is configured.
// The challenge code is printed only when revealCodes is set, which main does outside production.
type LogNotifier struct {
	logger      *zap.Logger
	revealCodes bool
}

// NewLogNotifier constructs a development notifier.
func NewLogNotifier(log *zap.Logger, revealCodes bool) *LogNotifier {
	return &LogNotifier{logger: log.With(zap.String("notifier", "log")), revealCodes: revealCodes}
}

// SendChallenge logs the delivery.
func (n *LogNotifier) SendChallenge(_ context.Context, notification domain.ChallengeNotification) error {
	fields := []zap.Field{
		zap.String("event_id", notification.EventID),
		zap.String("email", logger.MaskEmail(notification.Email)),
		zap.Time("expires_at", notification.ExpiresAt.UTC()),
	}
	if n.revealCodes {
		fields = append(fields, zap.String("code", notification.Code))
	}
	n.logger.Info("login challenge issued", fields...)
	return nil
}

// SendAccessRequestAlert logs the alert.
func (n *LogNotifier) SendAccessRequestAlert(_ context.Context, notification domain.AccessRequestNotification) error {
	n.logger.Info("access request submitted",
		zap.String("event_id", notification.EventID),
		zap.String("request_id", notification.RequestID),
		zap.String("requester_id", notification.RequesterID),
		zap.String("requested_role", string(notification.RequestedRole)),
		zap.Int("recipients", len(notification.Recipients)),
	)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
