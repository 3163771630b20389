package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

var decimalBase = big.NewInt(10)

// NewChallengeCode draws a decimal login code of the given length. Each digit is
// sampled independently with crypto/rand so leading zeros are as likely as any other.
func NewChallengeCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("challenge code length must be positive")
	}

	code := make([]byte, length)
	for i := range code {
		d, err := rand.Int(rand.Reader, decimalBase)
		if err != nil {
			return "", fmt.Errorf("draw challenge digit: %w", err)
		}
		code[i] = byte('0' + d.Int64())
	}
	return string(code), nil
}

// ChallengeDigest is the stored form of a challenge code. Only the digest is persisted.
func ChallengeDigest(code string) string {
	return sha256Hex(code)
}

func sha256Hex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
