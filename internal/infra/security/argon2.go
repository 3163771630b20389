package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2PHCFormat is the PHC string layout, e.g. $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>.
const argon2PHCFormat = "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"

var (
	// ErrMalformedCredential is returned by Verify for a stored value that is not an argon2id PHC string.
	ErrMalformedCredential = errors.New("argon2: malformed credential")
	errWeakParameters      = errors.New("argon2: parameters below minimum")
)

var phcEncoding = base64.RawStdEncoding

// Argon2Config defines tunable parameters for Argon2id password hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the baseline parameters (64 MiB, 3 passes, 4 lanes).
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32}
}

func (c Argon2Config) check() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: memory %d KiB < 8192", errWeakParameters, c.Memory)
	case c.Iterations == 0:
		return fmt.Errorf("%w: zero iterations", errWeakParameters)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: zero parallelism", errWeakParameters)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: salt %d bytes < 8", errWeakParameters, c.SaltLength)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key %d bytes < 16", errWeakParameters, c.KeyLength)
	}
	return nil
}

// Argon2Hasher hashes identity passwords with argon2id and a fresh salt per call.
type Argon2Hasher struct {
	cfg Argon2Config
}

// NewArgon2Hasher rejects parameters below the minimums.
func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

// Parameters reports the active parameters.
func (h *Argon2Hasher) Parameters() Argon2Config {
	return h.cfg
}

// Hash returns the PHC encoding of password.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)
	return fmt.Sprintf(argon2PHCFormat, argon2.Version, h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism,
		phcEncoding.EncodeToString(salt), phcEncoding.EncodeToString(key)), nil
}

// Verify recomputes the key with the parameters stored in encoded, so hashes made
// before a parameter change keep verifying.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	stored, salt, key, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, stored.Iterations, stored.Memory, stored.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func parsePHC(encoded string) (Argon2Config, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return Argon2Config{}, nil, nil, ErrMalformedCredential
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: version %q", ErrMalformedCredential, fields[2])
	}

	var cfg Argon2Config
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Iterations, &cfg.Parallelism); err != nil || n != 3 {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: parameters %q", ErrMalformedCredential, fields[3])
	}

	salt, err := phcEncoding.DecodeString(fields[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: salt", ErrMalformedCredential)
	}
	key, err := phcEncoding.DecodeString(fields[5])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: key", ErrMalformedCredential)
	}

	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(key))
	if err := cfg.check(); err != nil {
		return Argon2Config{}, nil, nil, err
	}
	return cfg, salt, key, nil
}
