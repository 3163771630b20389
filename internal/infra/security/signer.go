package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// MinSigningKeyLength is the shortest HMAC key accepted for ledger signatures.
const MinSigningKeyLength = 32

var ErrInvalidSigningKey = errors.New("signer: signing key must be at least 32 bytes")

// AuditSigner computes HMAC-SHA256 signatures over canonical audit payloads.
type AuditSigner struct {
	key []byte
}

// NewAuditSigner copies the key so callers may zero their buffer.
func NewAuditSigner(key []byte) (*AuditSigner, error) {
	if len(key) < MinSigningKeyLength {
		return nil, ErrInvalidSigningKey
	}
	copied := make([]byte, len(key))
	copy(copied, key)
	return &AuditSigner{key: copied}, nil
}

// Sign returns the hex HMAC of payload.
func (s *AuditSigner) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func (s *AuditSigner) Verify(payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
