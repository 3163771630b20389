package logger

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestMasking(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{name: "email", fn: MaskEmail, in: "john.doe@example.com", want: "joh***@example.com"},
		{name: "short email", fn: MaskEmail, in: "a@x.io", want: "a***@x.io"},
		{name: "not an email", fn: MaskEmail, in: "nobody", want: "***"},
		{name: "ipv4", fn: MaskIP, in: "192.168.1.100", want: "192.168.*.*"},
		{name: "ipv6", fn: MaskIP, in: "2001:db8:85a3:0:0:8a2e:370:7334", want: "2001:db8:85a3:0:*:*:*:*"},
		{name: "compressed ipv6", fn: MaskIP, in: "2001:db8::1", want: "2001:db8:0:0:*:*:*:*"},
		{name: "mapped ipv4", fn: MaskIP, in: "::ffff:10.1.2.3", want: "10.1.*.*"},
		{name: "not an ip", fn: MaskIP, in: "localhost", want: "***"},
		{name: "fingerprint", fn: MaskString, in: "ab12cd34ef", want: "ab***ef"},
		{name: "short string", fn: MaskString, in: "abc", want: "***"},
		{name: "empty", fn: MaskString, in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-42")
	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	if WithContext(ctx) == nil {
		t.Fatalf("expected a logger")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Env: "test", Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewInstallsLoggerForContext(t *testing.T) {
	lg, err := New(Options{Env: "test", Level: "debug"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !lg.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
	if WithContext(context.Background()) != lg {
		t.Fatal("expected WithContext to return the installed logger")
	}
}
