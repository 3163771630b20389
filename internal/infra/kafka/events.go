package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	EventChallengeIssued      = "auth.challenge.issued"
	EventAccessRequestCreated = "access_request.submitted"
)

// Notifier publishes delivery events for the downstream mail service. The challenge event is the
// only place a plaintext code leaves the process, and it is keyed by recipient so codes for one
// address stay ordered on a single partition.
type Notifier struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewNotifier constructs a Kafka-backed notifier.
func NewNotifier(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *Notifier {
	return &Notifier{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (n *Notifier) publish(ctx context.Context, eventID, eventType, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     n.appCfg.Name,
		"environment": n.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	return n.producer.Publish(ctx, eventType, key, bytes)
}

// SendChallenge publishes auth.challenge.issued.
func (n *Notifier) SendChallenge(ctx context.Context, notification domain.ChallengeNotification) error {
	payload := struct {
		Email     string    `json:"email"`
		Code      string    `json:"code"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		Email:     notification.Email,
		Code:      notification.Code,
		ExpiresAt: notification.ExpiresAt.UTC(),
	}

	return n.publish(ctx, notification.EventID, EventChallengeIssued, notification.Email, time.Time{}, payload)
}

// SendAccessRequestAlert publishes access_request.submitted for every reviewer.
func (n *Notifier) SendAccessRequestAlert(ctx context.Context, notification domain.AccessRequestNotification) error {
	payload := struct {
		RequestID     string    `json:"request_id"`
		RequesterID   string    `json:"requester_id"`
		RequesterName string    `json:"requester_name"`
		RequestedRole string    `json:"requested_role"`
		Reason        string    `json:"reason"`
		Recipients    []string  `json:"recipients"`
		SubmittedAt   time.Time `json:"submitted_at"`
	}{
		RequestID:     notification.RequestID,
		RequesterID:   notification.RequesterID,
		RequesterName: notification.RequesterName,
		RequestedRole: string(notification.RequestedRole),
		Reason:        notification.Reason,
		Recipients:    notification.Recipients,
		SubmittedAt:   notification.SubmittedAt.UTC(),
	}

	return n.publish(ctx, notification.EventID, EventAccessRequestCreated, notification.RequestID, notification.SubmittedAt, payload)
}

var _ port.Notifier = (*Notifier)(nil)
