package security

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
)

const (
	SourceLocal  = "local"
	SourceDevice = "device"

	defaultDeviceTimeout = 2 * time.Second
)

// LocalKeySource draws secrets from the process CSPRNG.
type LocalKeySource struct{}

// NewSecret implements port.KeySource.
func (LocalKeySource) NewSecret(_ context.Context) (port.GeneratedSecret, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return port.GeneratedSecret{}, err
	}
	return port.GeneratedSecret{Secret: secret, Source: SourceLocal}, nil
}

// DeviceKeySource reads entropy from a hardware RNG character device such as /dev/hwrng.
type DeviceKeySource struct {
	path    string
	timeout time.Duration
	open    func(name string) (io.ReadCloser, error)
}

// NewDeviceKeySource targets the device at path. A zero timeout uses the default.
func NewDeviceKeySource(path string, timeout time.Duration) *DeviceKeySource {
	if timeout <= 0 {
		timeout = defaultDeviceTimeout
	}
	return &DeviceKeySource{
		path:    path,
		timeout: timeout,
		open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
}

type deviceRead struct {
	buf []byte
	err error
}

// NewSecret reads SecretEntropyBytes from the device, bounded by the configured timeout.
// The device handle is closed and the reader has returned before NewSecret does.
func (s *DeviceKeySource) NewSecret(ctx context.Context) (port.GeneratedSecret, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	f, err := s.open(s.path)
	if err != nil {
		return port.GeneratedSecret{}, fmt.Errorf("open entropy device: %w", err)
	}
	if d, ok := f.(interface{ SetReadDeadline(time.Time) error }); ok {
		if deadline, ok := ctx.Deadline(); ok {
			_ = d.SetReadDeadline(deadline)
		}
	}

	result := make(chan deviceRead, 1)
	go func() {
		buf := make([]byte, SecretEntropyBytes)
		_, err := io.ReadFull(f, buf)
		result <- deviceRead{buf: buf, err: err}
	}()

	var r deviceRead
	select {
	case r = <-result:
		_ = f.Close()
	case <-ctx.Done():
		// Closing the handle unblocks the pending read.
		_ = f.Close()
		<-result
		return port.GeneratedSecret{}, fmt.Errorf("read entropy device: %w", ctx.Err())
	}

	if r.err != nil {
		return port.GeneratedSecret{}, fmt.Errorf("read entropy device: %w", r.err)
	}
	secret, err := SecretFromEntropy(r.buf)
	if err != nil {
		return port.GeneratedSecret{}, err
	}
	return port.GeneratedSecret{Secret: secret, Source: SourceDevice}, nil
}

// FallbackKeySource prefers primary and degrades to fallback when primary fails.
// With a nil fallback the failure surfaces as domain.ErrEntropyUnavailable.
type FallbackKeySource struct {
	primary  port.KeySource
	fallback port.KeySource
	logger   *zap.Logger
}

// NewFallbackKeySource composes the two sources.
func NewFallbackKeySource(primary, fallback port.KeySource, logger *zap.Logger) *FallbackKeySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackKeySource{primary: primary, fallback: fallback, logger: logger}
}

// NewSecret implements port.KeySource.
func (s *FallbackKeySource) NewSecret(ctx context.Context) (port.GeneratedSecret, error) {
	generated, err := s.primary.NewSecret(ctx)
	if err == nil {
		return generated, nil
	}

	if s.fallback == nil {
		return port.GeneratedSecret{}, fmt.Errorf("%w: %v", domain.ErrEntropyUnavailable, err)
	}

	s.logger.Warn("primary key source failed, using fallback", zap.Error(err))
	return s.fallback.NewSecret(ctx)
}
