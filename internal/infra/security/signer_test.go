package security

import (
	"bytes"
	"errors"
	"testing"
)

func TestAuditSignerSignVerify(t *testing.T) {
	signer, err := NewAuditSigner(bytes.Repeat([]byte{0x01}, MinSigningKeyLength))
	if err != nil {
		t.Fatalf("NewAuditSigner returned error: %v", err)
	}

	payload := []byte(`{"action":"KEY_ISSUED"}`)
	signature := signer.Sign(payload)

	if !signer.Verify(payload, signature) {
		t.Fatal("expected signature to verify")
	}
	if signer.Verify([]byte(`{"action":"KEY_DELETED"}`), signature) {
		t.Fatal("expected altered payload to fail verification")
	}
	if signer.Verify(payload, "not-hex") {
		t.Fatal("expected malformed signature to fail verification")
	}

	other, err := NewAuditSigner(bytes.Repeat([]byte{0x02}, MinSigningKeyLength))
	if err != nil {
		t.Fatalf("NewAuditSigner returned error: %v", err)
	}
	if other.Verify(payload, signature) {
		t.Fatal("expected signature under a different key to fail")
	}
}

func TestNewAuditSignerRejectsShortKey(t *testing.T) {
	if _, err := NewAuditSigner([]byte("short")); !errors.Is(err, ErrInvalidSigningKey) {
		t.Fatalf("expected ErrInvalidSigningKey, got %v", err)
	}
}
