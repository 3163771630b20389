package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

const (
	defaultSessionTTL    = time.Hour
	defaultSessionIssuer = "akira"
	// MinSessionKeyLength is the shortest HS256 key accepted.
	MinSessionKeyLength = 32
)

var (
	// ErrInvalidSessionToken covers every parse or validation failure of a session token.
	ErrInvalidSessionToken = errors.New("jwt: invalid session token")
	ErrInvalidSessionKey   = errors.New("jwt: session key must be at least 32 bytes")
)

// SessionClaims binds a session token to an identity and its role.
type SessionClaims struct {
	UserID string      `json:"uid"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionTokenOptions configures the issuer.
type SessionTokenOptions struct {
	Key    []byte
	Issuer string
	TTL    time.Duration
}

// SessionTokenManager signs and parses HS256 session tokens.
type SessionTokenManager struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionTokenManager validates the key and applies defaults.
func NewSessionTokenManager(opts SessionTokenOptions) (*SessionTokenManager, error) {
	if len(opts.Key) < MinSessionKeyLength {
		return nil, ErrInvalidSessionKey
	}

	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	key := make([]byte, len(opts.Key))
	copy(key, opts.Key)

	return &SessionTokenManager{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source, primarily for tests.
func (m *SessionTokenManager) WithClock(now func() time.Time) *SessionTokenManager {
	if now != nil {
		m.now = now
	}
	return m
}

// TTL reports the session lifetime.
func (m *SessionTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the identity.
func (m *SessionTokenManager) Issue(identityID string, role domain.Role) (string, *SessionClaims, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return "", nil, fmt.Errorf("jwt: user id is required")
	}
	if !role.Valid() {
		return "", nil, fmt.Errorf("jwt: invalid role %q", role)
	}

	now := m.now().UTC()
	claims := &SessionClaims{
		UserID: identityID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", nil, fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, claims, nil
}

// Parse verifies signature, issuer and expiry.
func (m *SessionTokenManager) Parse(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidSessionToken
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	if strings.TrimSpace(claims.UserID) == "" || !claims.Role.Valid() {
		return nil, ErrInvalidSessionToken
	}

	return claims, nil
}
