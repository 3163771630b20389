package port

import (
	"context"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// SecretSealer encrypts API key secrets at rest.
type SecretSealer interface {
	Encrypt(plaintext string) (iv string, cipherText string, err error)
	Decrypt(iv string, cipherText string) (string, error)
}

// PayloadSigner computes and checks keyed signatures.
type PayloadSigner interface {
	Sign(payload []byte) string
	Verify(payload []byte, signature string) bool
}

// GeneratedSecret is a fresh API key secret tagged with the source that produced it.
type GeneratedSecret struct {
	Secret string
	Source string
}

// KeySource produces new API key secrets.
type KeySource interface {
	NewSecret(ctx context.Context) (GeneratedSecret, error)
}

// SecretProvider hands out process-wide key material loaded once at startup.
type SecretProvider interface {
	MasterKey() []byte
	SigningKey() []byte
	SessionKey() []byte
}
