package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/infra/logger"
	"github.com/KVLNK12305/Akira/internal/infra/security"
	"github.com/KVLNK12305/Akira/internal/repository"
)

const maxDisplayNameLength = 64

// Login stages and outcomes reported to metrics.
const (
	StageBegin  = "begin"
	StageVerify = "verify"

	OutcomeSuccess  = "success"
	OutcomeDenied   = "denied"
	OutcomeMismatch = "mismatch"
	OutcomeExpired  = "expired"
	OutcomeLocked   = "locked"
)

// ErrSessionRevoked reports a session token that was ended before its expiry.
var ErrSessionRevoked = fmt.Errorf("session revoked: %w", domain.ErrDenied)

// AuthSessionOptions configures the login state machine.
type AuthSessionOptions struct {
	ChallengeTTL time.Duration
	MaxAttempts  int
	// Revocations enables the server-side session denylist when non-nil.
	Revocations port.SessionRevocationStore
	Metrics     port.SecurityMetrics
	Logger      *zap.Logger
}

// AuthSessionMachine drives Unauthenticated -> ChallengeIssued -> Authenticated.
type AuthSessionMachine struct {
	tx          port.Transactor
	identities  port.IdentityRepository
	challenges  port.ChallengeStore
	hasher      port.PasswordHasher
	policy      port.PasswordPolicyValidator
	tokens      *security.SessionTokenManager
	ledger      *AuditLedger
	dispatcher  *Dispatcher
	revocations port.SessionRevocationStore

	challengeTTL time.Duration
	maxAttempts  int
	metrics      port.SecurityMetrics
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	absentHash   string
}

// NewAuthSessionMachine wires the login flow.
func NewAuthSessionMachine(
	tx port.Transactor,
	identities port.IdentityRepository,
	challenges port.ChallengeStore,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	tokens *security.SessionTokenManager,
	ledger *AuditLedger,
	dispatcher *Dispatcher,
	opts AuthSessionOptions,
) *AuthSessionMachine {
	ttl := opts.ChallengeTTL
	if ttl <= 0 {
		ttl = domain.DefaultChallengeTTL
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = domain.MaxChallengeAttempts
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	absentHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		log.Warn("absent identity hash unavailable, unknown emails skip verification", zap.Error(err))
	}

	return &AuthSessionMachine{
		tx:           tx,
		identities:   identities,
		challenges:   challenges,
		hasher:       hasher,
		policy:       policy,
		tokens:       tokens,
		ledger:       ledger,
		dispatcher:   dispatcher,
		revocations:  opts.Revocations,
		challengeTTL: ttl,
		maxAttempts:  attempts,
		metrics:      metricsOrNoop(opts.Metrics),
		logger:       log,
		now:          time.Now,
		newID:        uuid.NewString,
		absentHash:   absentHash,
	}
}

// WithClock overrides the time source.
func (m *AuthSessionMachine) WithClock(now func() time.Time) *AuthSessionMachine {
	if now != nil {
		m.now = now
	}
	return m
}

// RevocationEnabled reports whether ended sessions are denylisted server-side.
func (m *AuthSessionMachine) RevocationEnabled() bool {
	return m.revocations != nil
}

// LoginStarted is the transitional result of a successful first factor. No session exists yet.
type LoginStarted struct {
	ChallengeIssued bool
	Identity        domain.IdentitySummary
	ExpiresAt       time.Time
}

// AuthenticatedSession is the terminal result of a correct challenge.
type AuthenticatedSession struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	Identity  domain.IdentitySummary
}

// RegisterInput carries a self-registration request. Role is never accepted from the client.
type RegisterInput struct {
	DisplayName string
	Email       string
	Password    string
	IPAddress   *string
}

// Register creates a Newbie identity and immediately issues its first login challenge.
func (m *AuthSessionMachine) Register(ctx context.Context, in RegisterInput) (*LoginStarted, error) {
	ctx, span := tracer.Start(ctx, "AuthSessionMachine.Register")
	defer span.End()

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" || len(displayName) > maxDisplayNameLength {
		return nil, domain.NewValidationError("display_name", fmt.Sprintf("display name must be 1-%d characters", maxDisplayNameLength))
	}
	email, err := domain.ValidateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := m.policy.Validate(in.Password, domain.PasswordContext{DisplayName: displayName, Email: email}); err != nil {
		return nil, err
	}

	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := domain.Identity{
		ID:             m.newID(),
		DisplayName:    displayName,
		Email:          email,
		CredentialHash: hash,
		Role:           domain.DefaultRole,
		CreatedAt:      m.now().UTC(),
	}

	err = m.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := stores.Identities.Create(ctx, identity); err != nil {
			return translate("create identity", err)
		}
		_, err := m.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(&identity, in.IPAddress, domain.UserRegisteredDetails{
			Email: identity.Email,
			Role:  identity.Role,
		}))
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("identity registered",
		zap.String("identity_id", identity.ID),
		zap.String("email", logger.MaskEmail(identity.Email)),
	)

	return m.issueChallenge(ctx, &identity, in.IPAddress)
}

// BeginLogin verifies the first factor and issues a challenge. Every failure is the same ErrDenied.
func (m *AuthSessionMachine) BeginLogin(ctx context.Context, email, password string, ip *string) (*LoginStarted, error) {
	ctx, span := tracer.Start(ctx, "AuthSessionMachine.BeginLogin")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}
	if password == "" {
		return nil, domain.NewValidationError("password", "password is required")
	}

	identity, err := m.identities.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		m.verifyAbsentIdentity(password)
		return nil, m.loginDenied(ctx, email, ip)
	case err != nil:
		return nil, translate("lookup identity", err)
	}

	ok, err := m.hasher.Verify(password, identity.CredentialHash)
	if err != nil {
		m.logger.Warn("stored credential hash unreadable",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}
	if err != nil || !ok {
		return nil, m.loginDenied(ctx, email, ip)
	}

	return m.issueChallenge(ctx, identity, ip)
}

// verifyAbsentIdentity spends one hash verification so an unknown email costs
// what a wrong password costs.
func (m *AuthSessionMachine) verifyAbsentIdentity(password string) {
	if m.absentHash == "" {
		return
	}
	_, _ = m.hasher.Verify(password, m.absentHash)
}

func (m *AuthSessionMachine) loginDenied(ctx context.Context, email string, ip *string) error {
	m.metrics.LoginOutcome(StageBegin, OutcomeDenied)
	if _, err := m.ledger.Append(ctx, domain.AuditDraft{
		ActorDisplay: email,
		IPAddress:    ip,
		Details:      domain.LoginFailedDetails{Email: email},
	}); err != nil {
		return errors.Join(err, domain.ErrDenied)
	}
	return domain.ErrDenied
}

// issueChallenge replaces any pending challenge for the identity's email. Last write wins.
func (m *AuthSessionMachine) issueChallenge(ctx context.Context, identity *domain.Identity, ip *string) (*LoginStarted, error) {
	code, err := security.NewChallengeCode(domain.ChallengeCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate challenge code: %w", err)
	}

	now := m.now().UTC()
	challenge := domain.PendingChallenge{
		Email:      identity.Email,
		IdentityID: identity.ID,
		CodeDigest: security.ChallengeDigest(code),
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.challengeTTL),
	}
	if err := m.challenges.Put(ctx, challenge, m.challengeTTL); err != nil {
		return nil, translate("store challenge", err)
	}

	if _, err := m.ledger.Append(ctx, actorDraft(identity, ip, domain.ChallengeIssuedDetails{
		Email:         identity.Email,
		ExpiresInSecs: int64(m.challengeTTL / time.Second),
	})); err != nil {
		// An unaudited challenge must not stay answerable.
		if delErr := m.challenges.Delete(ctx, identity.Email); delErr != nil && !errors.Is(delErr, repository.ErrNotFound) {
			m.logger.Error("discard unaudited challenge", zap.Error(delErr))
		}
		return nil, err
	}

	m.dispatcher.Challenge(domain.ChallengeNotification{
		EventID:   m.newID(),
		Email:     identity.Email,
		Code:      code,
		ExpiresAt: challenge.ExpiresAt,
	})

	m.metrics.LoginOutcome(StageBegin, OutcomeSuccess)
	return &LoginStarted{
		ChallengeIssued: true,
		Identity:        identity.Summary(),
		ExpiresAt:       challenge.ExpiresAt,
	}, nil
}

// VerifyChallenge answers the pending challenge in one atomic store step, so concurrent
// submissions never compare more than maxAttempts codes and a code authenticates once.
// Wrong codes return *domain.ChallengeMismatchError. Past the ceiling the challenge is
// cleared and the result is ErrLocked.
func (m *AuthSessionMachine) VerifyChallenge(ctx context.Context, email, code string, ip *string) (*AuthenticatedSession, error) {
	ctx, span := tracer.Start(ctx, "AuthSessionMachine.VerifyChallenge")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}
	code = strings.TrimSpace(code)
	if !isNumericCode(code, domain.ChallengeCodeLength) {
		return nil, domain.NewValidationError("code", fmt.Sprintf("code must be %d digits", domain.ChallengeCodeLength))
	}

	attempt, err := m.challenges.Attempt(ctx, email, security.ChallengeDigest(code), m.maxAttempts, m.now())
	if err != nil {
		return nil, translate("verify challenge", err)
	}

	switch attempt.Verdict {
	case domain.ChallengeConsumed:
	case domain.ChallengeMismatched:
		return nil, m.challengeMismatch(ctx, email, attempt, ip)
	case domain.ChallengeLapsed:
		return nil, m.rejectChallenge(ctx, email, ip, domain.ChallengeRejectExpired, attempt.AttemptCount, OutcomeExpired, domain.ErrExpired)
	case domain.ChallengeLockedOut:
		return nil, m.rejectChallenge(ctx, email, ip, domain.ChallengeRejectExhausted, attempt.AttemptCount, OutcomeLocked, domain.ErrLocked)
	default:
		return nil, m.rejectChallenge(ctx, email, ip, domain.ChallengeRejectMissing, 0, OutcomeDenied, domain.ErrDenied)
	}

	identity, err := m.identities.GetByID(ctx, attempt.IdentityID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, domain.ErrDenied
	case err != nil:
		return nil, translate("load identity", err)
	}

	token, claims, err := m.tokens.Issue(identity.ID, identity.Role)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	if _, err := m.ledger.Append(ctx, actorDraft(identity, ip, domain.LoginSuccessDetails{
		Email: identity.Email,
		Role:  identity.Role,
	})); err != nil {
		return nil, err
	}

	m.metrics.LoginOutcome(StageVerify, OutcomeSuccess)
	return &AuthenticatedSession{
		Token:     token,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		Identity:  identity.Summary(),
	}, nil
}

func (m *AuthSessionMachine) challengeMismatch(ctx context.Context, email string, attempt domain.ChallengeAttempt, ip *string) error {
	remaining := m.maxAttempts - attempt.AttemptCount
	if remaining < 0 {
		remaining = 0
	}

	m.metrics.LoginOutcome(StageVerify, OutcomeMismatch)
	if _, err := m.ledger.Append(ctx, domain.AuditDraft{
		ActorID:      strPtr(attempt.IdentityID),
		ActorDisplay: email,
		IPAddress:    ip,
		Details: domain.MFAFailedDetails{
			Email:        email,
			AttemptCount: attempt.AttemptCount,
			Remaining:    remaining,
		},
	}); err != nil {
		return errors.Join(err, &domain.ChallengeMismatchError{Remaining: remaining})
	}
	return &domain.ChallengeMismatchError{Remaining: remaining}
}

func (m *AuthSessionMachine) rejectChallenge(ctx context.Context, email string, ip *string, reason string, attempts int, outcome string, cause error) error {
	m.metrics.LoginOutcome(StageVerify, outcome)
	if _, err := m.ledger.Append(ctx, domain.AuditDraft{
		ActorDisplay: email,
		IPAddress:    ip,
		Details: domain.MFALockedDetails{
			Email:        email,
			Reason:       reason,
			AttemptCount: attempts,
		},
	}); err != nil {
		return errors.Join(err, cause)
	}
	return cause
}

// AuthenticateSession validates a session token and, when enabled, the revocation list.
func (m *AuthSessionMachine) AuthenticateSession(ctx context.Context, raw string) (*domain.SessionPrincipal, error) {
	claims, err := m.tokens.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDenied, err)
	}

	if m.revocations != nil {
		revoked, err := m.revocations.Revoked(ctx, claims.ID)
		if err != nil {
			return nil, translate("check session revocation", err)
		}
		if revoked {
			return nil, ErrSessionRevoked
		}
	}

	return &domain.SessionPrincipal{
		IdentityID: claims.UserID,
		Role:       claims.Role,
		TokenID:    claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// EndSession records the logout. With the revocation list enabled the token ID is
// denylisted until the token would have expired on its own.
func (m *AuthSessionMachine) EndSession(ctx context.Context, principal *domain.SessionPrincipal, ip *string) error {
	if principal == nil {
		return domain.ErrDenied
	}

	revoked := false
	if m.revocations != nil {
		if err := m.revocations.Revoke(ctx, principal.TokenID, principal.ExpiresAt); err != nil {
			return translate("revoke session", err)
		}
		revoked = true
	}

	draft := domain.AuditDraft{
		ActorID:   strPtr(principal.IdentityID),
		IPAddress: ip,
		Details: domain.LogoutDetails{
			TokenID: principal.TokenID,
			Revoked: revoked,
		},
	}
	if identity, err := m.identities.GetByID(ctx, principal.IdentityID); err == nil {
		draft.ActorDisplay = identity.DisplayName
	}

	_, err := m.ledger.Append(ctx, draft)
	return err
}

// CurrentIdentity returns the caller's fresh summary.
func (m *AuthSessionMachine) CurrentIdentity(ctx context.Context, identityID string) (domain.IdentitySummary, error) {
	identity, err := m.identities.GetByID(ctx, identityID)
	if err != nil {
		return domain.IdentitySummary{}, translate("load identity", err)
	}
	return identity.Summary(), nil
}

func isNumericCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func strPtr(s string) *string {
	return &s
}
