package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	masterKeyFile  = "master.key"
	signingKeyFile = "signing.key"
	sessionKeyFile = "session.key"
)

var ErrSecretMissing = errors.New("secrets: key not configured")

// SecretSources lists where process secrets may come from. Inline hex values win over files
// in Directory. AllowEphemeral generates random keys for anything still missing.
type SecretSources struct {
	MasterKeyHex   string
	SigningKeyHex  string
	SessionKeyHex  string
	Directory      string
	AllowEphemeral bool
}

// StaticSecretProvider holds the keys resolved once at startup.
type StaticSecretProvider struct {
	master    []byte
	signing   []byte
	session   []byte
	ephemeral bool
}

// NewStaticSecretProvider wraps already decoded keys.
func NewStaticSecretProvider(master, signing, session []byte) (*StaticSecretProvider, error) {
	if len(master) != MasterKeyLength {
		return nil, ErrInvalidMasterKey
	}
	if len(signing) < MinSigningKeyLength {
		return nil, ErrInvalidSigningKey
	}
	if len(session) < MinSessionKeyLength {
		return nil, ErrInvalidSessionKey
	}
	return &StaticSecretProvider{master: master, signing: signing, session: session}, nil
}

// LoadSecrets resolves master, signing and session keys. Key material is never logged.
func LoadSecrets(src SecretSources, logger *zap.Logger) (*StaticSecretProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := &StaticSecretProvider{}
	targets := []struct {
		name   string
		inline string
		file   string
		size   int
		dst    *[]byte
	}{
		{name: "master", inline: src.MasterKeyHex, file: masterKeyFile, size: MasterKeyLength, dst: &provider.master},
		{name: "signing", inline: src.SigningKeyHex, file: signingKeyFile, size: MinSigningKeyLength, dst: &provider.signing},
		{name: "session", inline: src.SessionKeyHex, file: sessionKeyFile, size: MinSessionKeyLength, dst: &provider.session},
	}

	for _, target := range targets {
		raw, err := resolveHex(target.inline, src.Directory, target.file)
		if err != nil && !errors.Is(err, ErrSecretMissing) {
			return nil, fmt.Errorf("secrets: %s key: %w", target.name, err)
		}

		if errors.Is(err, ErrSecretMissing) {
			if !src.AllowEphemeral {
				return nil, fmt.Errorf("secrets: %s key: %w", target.name, ErrSecretMissing)
			}
			raw = make([]byte, target.size)
			if _, err := rand.Read(raw); err != nil {
				return nil, fmt.Errorf("secrets: generate %s key: %w", target.name, err)
			}
			provider.ephemeral = true
			logger.Warn("using ephemeral key; data sealed with it will not survive a restart", zap.String("key", target.name))
		}

		if target.name == "master" && len(raw) != target.size {
			return nil, ErrInvalidMasterKey
		}
		if len(raw) < target.size {
			return nil, fmt.Errorf("secrets: %s key must be at least %d bytes", target.name, target.size)
		}

		*target.dst = raw
	}

	return provider, nil
}

func resolveHex(inline, dir, file string) ([]byte, error) {
	value := strings.TrimSpace(inline)
	if value == "" && strings.TrimSpace(dir) != "" {
		content, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrSecretMissing
			}
			return nil, fmt.Errorf("read key file: %w", err)
		}
		value = strings.TrimSpace(string(content))
	}
	if value == "" {
		return nil, ErrSecretMissing
	}

	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

// MasterKey returns a copy of the vault key.
func (p *StaticSecretProvider) MasterKey() []byte { return cloneBytes(p.master) }

// SigningKey returns a copy of the ledger signing key.
func (p *StaticSecretProvider) SigningKey() []byte { return cloneBytes(p.signing) }

// SessionKey returns a copy of the session token key.
func (p *StaticSecretProvider) SessionKey() []byte { return cloneBytes(p.session) }

// Ephemeral reports whether any key was generated at startup rather than configured.
func (p *StaticSecretProvider) Ephemeral() bool { return p.ephemeral }

// String keeps key material out of formatted logs.
func (p *StaticSecretProvider) String() string { return "StaticSecretProvider{redacted}" }

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ZeroBytes overwrites a key buffer once it is no longer needed.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
