package logger

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects encoder and level for the process logger.
type Options struct {
	Env     string
	Level   string
	Service string
}

var base atomic.Pointer[zap.Logger]

// New builds the process logger and installs it for WithContext. Production writes
// JSON with ISO8601 timestamps; other environments use the coloured console encoder.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		level = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !strings.EqualFold(opts.Env, "production") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	service := opts.Service
	if service == "" {
		service = "akira"
	}
	cfg.InitialFields = map[string]any{"service": service}

	lg, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}
	base.Store(lg)
	return lg, nil
}

type requestIDKey struct{}

// WithContext returns the installed logger tagged with the request id carried by ctx.
// Before New has run it returns a no-op logger.
func WithContext(ctx context.Context) *zap.Logger {
	lg := base.Load()
	if lg == nil {
		return zap.NewNop()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return lg.With(zap.String("request_id", id))
	}
	return lg
}

// ContextWithRequestID stores the request identifier for WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the stored request identifier or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
