package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// SecretPrefix marks every issued API key so format checks need no lookup.
	SecretPrefix = "akira_"
	// SecretEntropyBytes is the randomness carried by each secret (256 bits).
	SecretEntropyBytes = 32
	// MasterKeyLength is the AES-256 key size.
	MasterKeyLength = 32
)

var (
	ErrInvalidMasterKey = errors.New("vault: master key must be 32 bytes")
	ErrDecrypt          = errors.New("vault: decrypt failed")
)

var secretLength = len(SecretPrefix) + base64.RawURLEncoding.EncodedLen(SecretEntropyBytes)

// Vault holds the master key and provides the primitives for API key material.
type Vault struct {
	aead cipher.AEAD
}

// NewVault builds an AES-256-GCM vault from the master key.
func NewVault(masterKey []byte) (*Vault, error) {
	if len(masterKey) != MasterKeyLength {
		return nil, ErrInvalidMasterKey
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// GenerateSecret returns SecretPrefix followed by base64url of 32 random bytes.
func GenerateSecret() (string, error) {
	entropy := make([]byte, SecretEntropyBytes)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("vault: generate secret: %w", err)
	}
	return SecretFromEntropy(entropy)
}

// SecretFromEntropy formats externally sourced random bytes as a secret.
func SecretFromEntropy(entropy []byte) (string, error) {
	if len(entropy) < SecretEntropyBytes {
		return "", fmt.Errorf("vault: need %d bytes of entropy, got %d", SecretEntropyBytes, len(entropy))
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(entropy[:SecretEntropyBytes]), nil
}

// HasSecretFormat is the constant-time shape check applied before any lookup.
func HasSecretFormat(secret string) bool {
	return len(secret) == secretLength && strings.HasPrefix(secret, SecretPrefix)
}

// Encrypt seals plaintext under a fresh random nonce. Both values are hex encoded.
func (v *Vault) Encrypt(plaintext string) (iv string, cipherText string, err error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce), hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Tampered input fails authentication.
func (v *Vault) Decrypt(iv, cipherText string) (string, error) {
	nonce, err := hex.DecodeString(iv)
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", ErrDecrypt
	}

	sealed, err := hex.DecodeString(cipherText)
	if err != nil {
		return "", ErrDecrypt
	}

	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plain), nil
}

// Fingerprint is the one-way lookup digest of a secret.
func Fingerprint(secret string) string {
	return sha256Hex(secret)
}
