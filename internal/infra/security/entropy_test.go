package security

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
)

type failingKeySource struct{}

func (failingKeySource) NewSecret(context.Context) (port.GeneratedSecret, error) {
	return port.GeneratedSecret{}, errors.New("device offline")
}

func TestDeviceKeySourceReadsEntropy(t *testing.T) {
	src := NewDeviceKeySource("/dev/fake", time.Second)
	src.open = func(string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(bytes.Repeat([]byte{0xAB}, 64))), nil
	}

	generated, err := src.NewSecret(context.Background())
	if err != nil {
		t.Fatalf("NewSecret returned error: %v", err)
	}
	if generated.Source != SourceDevice {
		t.Fatalf("expected device source, got %s", generated.Source)
	}
	if !HasSecretFormat(generated.Secret) {
		t.Fatalf("expected device secret to have the standard format, got %q", generated.Secret)
	}
}

func TestDeviceKeySourceShortRead(t *testing.T) {
	src := NewDeviceKeySource("/dev/fake", time.Second)
	src.open = func(string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte{0x01, 0x02})), nil
	}

	if _, err := src.NewSecret(context.Background()); err == nil {
		t.Fatal("expected error on short read")
	}
}

// stalledDevice blocks every read until it is closed.
type stalledDevice struct {
	closed  chan struct{}
	once    sync.Once
	reading atomic.Int32
}

func (d *stalledDevice) Read([]byte) (int, error) {
	d.reading.Add(1)
	defer d.reading.Add(-1)
	<-d.closed
	return 0, os.ErrClosed
}

func (d *stalledDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func TestDeviceKeySourceTimeoutReleasesDevice(t *testing.T) {
	device := &stalledDevice{closed: make(chan struct{})}
	src := NewDeviceKeySource("/dev/fake", 20*time.Millisecond)
	src.open = func(string) (io.ReadCloser, error) { return device, nil }

	_, err := src.NewSecret(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	select {
	case <-device.closed:
	default:
		t.Fatal("expected the device handle to be closed")
	}
	if n := device.reading.Load(); n != 0 {
		t.Fatalf("expected no reader left on the device, got %d", n)
	}
}

func TestDeviceKeySourceMissingDevice(t *testing.T) {
	src := NewDeviceKeySource("/nonexistent/akira-hwrng", 100*time.Millisecond)
	if _, err := src.NewSecret(context.Background()); err == nil {
		t.Fatal("expected error for missing device")
	}
}

func TestFallbackKeySourceDegradesToLocal(t *testing.T) {
	src := NewFallbackKeySource(failingKeySource{}, LocalKeySource{}, zaptest.NewLogger(t))

	generated, err := src.NewSecret(context.Background())
	if err != nil {
		t.Fatalf("NewSecret returned error: %v", err)
	}
	if generated.Source != SourceLocal {
		t.Fatalf("expected local fallback, got %s", generated.Source)
	}
}

func TestFallbackKeySourceWithoutFallbackFailsDistinctly(t *testing.T) {
	src := NewFallbackKeySource(failingKeySource{}, nil, zaptest.NewLogger(t))

	_, err := src.NewSecret(context.Background())
	if !errors.Is(err, domain.ErrEntropyUnavailable) {
		t.Fatalf("expected ErrEntropyUnavailable, got %v", err)
	}
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected error to classify as dependency unavailable, got %v", err)
	}
}
