package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
)

const defaultDispatchTimeout = 5 * time.Second

// Dispatcher hands notifications to the Notifier without blocking the caller.
// Delivery failures are logged on their own channel and never reach the state machine.
type Dispatcher struct {
	notifier port.Notifier
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher wraps notifier. A nil notifier turns every dispatch into a no-op.
func NewDispatcher(notifier port.Notifier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger.With(zap.String("channel", "notifier")),
	}
}

// Challenge delivers a login code.
func (d *Dispatcher) Challenge(n domain.ChallengeNotification) {
	d.dispatch("challenge", func(ctx context.Context) error {
		return d.notifier.SendChallenge(ctx, n)
	})
}

// AccessRequest alerts reviewers about a new elevation request.
func (d *Dispatcher) AccessRequest(n domain.AccessRequestNotification) {
	d.dispatch("access_request", func(ctx context.Context) error {
		return d.notifier.SendAccessRequestAlert(ctx, n)
	})
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(kind string, send func(ctx context.Context) error) {
	if d == nil || d.notifier == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
	}()
}
