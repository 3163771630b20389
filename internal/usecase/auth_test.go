package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/infra/security"
)

func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func (f *fixture) deliveredCode(t *testing.T, email string) string {
	t.Helper()
	f.dispatcher.Wait()
	return f.notifier.lastCode(t, email)
}

func TestAuthSessionMachine_RegisterAndLogin(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	started, err := f.auth.Register(ctx, RegisterInput{DisplayName: "Dev", Email: "Dev@X.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if !started.ChallengeIssued || started.Identity.Role != domain.RoleNewbie || started.Identity.Email != "dev@x.com" {
		t.Fatalf("unexpected registration result: %+v", started)
	}
	if len(f.store.entriesFor(domain.ActionUserRegistered)) != 1 || len(f.store.entriesFor(domain.ActionChallengeIssued)) != 1 {
		t.Fatalf("expected USER_REGISTERED and MFA_CHALLENGE_ISSUED entries")
	}

	code := f.deliveredCode(t, "dev@x.com")
	session, err := f.auth.VerifyChallenge(ctx, "dev@x.com", code, nil)
	if err != nil {
		t.Fatalf("VerifyChallenge returned error: %v", err)
	}
	if session.Token == "" || session.Identity.Role != domain.RoleNewbie {
		t.Fatalf("unexpected session: %+v", session)
	}
	if f.challenges.count() != 0 {
		t.Fatalf("a consumed challenge must be cleared")
	}

	principal, err := f.auth.AuthenticateSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("AuthenticateSession returned error: %v", err)
	}
	if principal.IdentityID != started.Identity.ID || principal.TokenID != session.TokenID {
		t.Fatalf("unexpected principal: %+v", principal)
	}

	if _, err := f.auth.VerifyChallenge(ctx, "dev@x.com", code, nil); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("a consumed code must not be reusable, got %v", err)
	}
}

func TestAuthSessionMachine_LockoutAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	code := f.deliveredCode(t, "dev@x.com")

	for i := 1; i <= domain.MaxChallengeAttempts; i++ {
		_, err := f.auth.VerifyChallenge(ctx, "dev@x.com", wrongCode(code), nil)
		var mismatch *domain.ChallengeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
		if mismatch.Remaining != domain.MaxChallengeAttempts-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, domain.MaxChallengeAttempts-i, mismatch.Remaining)
		}
	}

	if _, err := f.auth.VerifyChallenge(ctx, "dev@x.com", code, nil); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if f.challenges.count() != 0 {
		t.Fatalf("a locked challenge must be cleared")
	}
	if got := len(f.store.entriesFor(domain.ActionMFAFailed)); got != domain.MaxChallengeAttempts {
		t.Fatalf("expected %d MFA_FAILED entries, got %d", domain.MaxChallengeAttempts, got)
	}
	locked := f.store.entriesFor(domain.ActionMFALocked)
	if len(locked) != 1 || locked[0].Details.(domain.MFALockedDetails).Reason != domain.ChallengeRejectExhausted {
		t.Fatalf("expected one exhausted MFA_LOCKED entry, got %+v", locked)
	}
	if len(f.store.entriesFor(domain.ActionLoginSuccess)) != 0 {
		t.Fatalf("a locked challenge must never authenticate")
	}
}

func TestAuthSessionMachine_ExpiredChallenge(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	code := f.deliveredCode(t, "dev@x.com")

	f.clock.Advance(domain.DefaultChallengeTTL + time.Second)
	if _, err := f.auth.VerifyChallenge(ctx, "dev@x.com", code, nil); !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if f.challenges.count() != 0 {
		t.Fatalf("an expired challenge must be cleared")
	}
	locked := f.store.entriesFor(domain.ActionMFALocked)
	if len(locked) != 1 || locked[0].Details.(domain.MFALockedDetails).Reason != domain.ChallengeRejectExpired {
		t.Fatalf("expected one expired MFA_LOCKED entry, got %+v", locked)
	}
}

func TestAuthSessionMachine_BeginLoginUniformDenial(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	_, unknownErr := f.auth.BeginLogin(ctx, "ghost@x.com", "Str0ng!Pass", nil)
	_, wrongErr := f.auth.BeginLogin(ctx, "dev@x.com", "Wr0ng!Pass", nil)

	for _, err := range []error{unknownErr, wrongErr} {
		if !errors.Is(err, domain.ErrDenied) || err.Error() != domain.ErrDenied.Error() {
			t.Fatalf("expected uniform ErrDenied, got %v", err)
		}
	}
	if got := len(f.store.entriesFor(domain.ActionLoginFailed)); got != 2 {
		t.Fatalf("expected 2 LOGIN_FAILED entries, got %d", got)
	}
	if f.challenges.count() != 0 {
		t.Fatalf("no challenge may be issued on failure")
	}
}

func TestAuthSessionMachine_NewLoginReplacesChallenge(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	first := f.deliveredCode(t, "dev@x.com")

	if _, err := f.auth.VerifyChallenge(ctx, "dev@x.com", wrongCode(first), nil); err == nil {
		t.Fatalf("expected mismatch")
	}

	var second string
	for {
		if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
			t.Fatalf("BeginLogin returned error: %v", err)
		}
		second = f.deliveredCode(t, "dev@x.com")
		if second != first {
			break
		}
	}

	challenge, ok := f.challenges.peek("dev@x.com")
	if !ok {
		t.Fatalf("challenge missing")
	}
	if challenge.AttemptCount != 0 {
		t.Fatalf("a replacement challenge starts with zero attempts, got %d", challenge.AttemptCount)
	}

	var mismatch *domain.ChallengeMismatchError
	if _, err := f.auth.VerifyChallenge(ctx, "dev@x.com", first, nil); !errors.As(err, &mismatch) {
		t.Fatalf("the replaced code must no longer match, got %v", err)
	}
	if _, err := f.auth.VerifyChallenge(ctx, "dev@x.com", second, nil); err != nil {
		t.Fatalf("the latest code must verify, got %v", err)
	}
}

func TestAuthSessionMachine_VerifyValidatesCodeFormat(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		if _, err := f.auth.VerifyChallenge(ctx, "dev@x.com", code, nil); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("code %q: expected ErrValidation, got %v", code, err)
		}
	}
	challenge, ok := f.challenges.peek("dev@x.com")
	if !ok {
		t.Fatalf("challenge missing")
	}
	if challenge.AttemptCount != 0 {
		t.Fatalf("malformed codes must not count as attempts")
	}
}

func TestAuthSessionMachine_VerifyWithoutChallenge(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	if _, err := f.auth.VerifyChallenge(context.Background(), "nobody@x.com", "123456", nil); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	locked := f.store.entriesFor(domain.ActionMFALocked)
	if len(locked) != 1 || locked[0].Details.(domain.MFALockedDetails).Reason != domain.ChallengeRejectMissing {
		t.Fatalf("expected missing-challenge MFA_LOCKED entry")
	}
}

func TestAuthSessionMachine_EndSessionRevokesToken(t *testing.T) {
	f := newFixture(t, fixtureOptions{revocations: true})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	session, err := f.auth.VerifyChallenge(ctx, "dev@x.com", f.deliveredCode(t, "dev@x.com"), nil)
	if err != nil {
		t.Fatalf("VerifyChallenge returned error: %v", err)
	}
	principal, err := f.auth.AuthenticateSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("AuthenticateSession returned error: %v", err)
	}

	if err := f.auth.EndSession(ctx, principal, nil); err != nil {
		t.Fatalf("EndSession returned error: %v", err)
	}
	if _, err := f.auth.AuthenticateSession(ctx, session.Token); !errors.Is(err, ErrSessionRevoked) || !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	logouts := f.store.entriesFor(domain.ActionLogout)
	if len(logouts) != 1 || !logouts[0].Details.(domain.LogoutDetails).Revoked {
		t.Fatalf("expected a revoked LOGOUT entry, got %+v", logouts)
	}
	if logouts[0].ActorDisplay != "dev" {
		t.Fatalf("expected logout actor display, got %q", logouts[0].ActorDisplay)
	}
}

func TestAuthSessionMachine_EndSessionWithoutRevocationList(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	token, claims, err := f.tokens.Issue("dev-1", domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	principal := &domain.SessionPrincipal{IdentityID: "dev-1", Role: domain.RoleDeveloper, TokenID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}

	if err := f.auth.EndSession(ctx, principal, nil); err != nil {
		t.Fatalf("EndSession returned error: %v", err)
	}
	if _, err := f.auth.AuthenticateSession(ctx, token); err != nil {
		t.Fatalf("without a revocation list the token stays valid until expiry, got %v", err)
	}
	if f.store.entriesFor(domain.ActionLogout)[0].Details.(domain.LogoutDetails).Revoked {
		t.Fatalf("logout must not claim revocation")
	}
}

func TestAuthSessionMachine_RejectsExpiredOrForgedToken(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	token, _, err := f.tokens.Issue("dev-1", domain.RoleDeveloper)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := f.auth.AuthenticateSession(ctx, token+"x"); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied for forged token, got %v", err)
	}
	f.clock.Advance(f.tokens.TTL() + time.Minute)
	if _, err := f.auth.AuthenticateSession(ctx, token); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied for expired token, got %v", err)
	}
}

func TestAuthSessionMachine_NotifierFailureIsTolerated(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.notifier.err = errors.New("smtp down")
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	started, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil)
	if err != nil {
		t.Fatalf("delivery failure must not fail the login, got %v", err)
	}
	if !started.ChallengeIssued || f.challenges.count() != 1 {
		t.Fatalf("challenge must be issued regardless of delivery")
	}
}

func TestAuthSessionMachine_RegisterValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.Register(ctx, RegisterInput{DisplayName: "Again", Email: "DEV@x.com", Password: "Str0ng!Pass"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	cases := map[string]RegisterInput{
		"weak password": {DisplayName: "New", Email: "new@x.com", Password: "password"},
		"bad email":     {DisplayName: "New", Email: "not-an-email", Password: "Str0ng!Pass"},
		"no name":       {DisplayName: " ", Email: "new@x.com", Password: "Str0ng!Pass"},
	}
	for name, in := range cases {
		if _, err := f.auth.Register(ctx, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}
	if len(f.store.entriesFor(domain.ActionUserRegistered)) != 0 {
		t.Fatalf("rejected registrations must not be audited")
	}
}

func TestAuthSessionMachine_ChallengeAuditFailureDiscardsChallenge(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)
	f.store.auditErr = func(e domain.AuditEntry) error {
		if e.Action == domain.ActionChallengeIssued {
			return errStoreDown
		}
		return nil
	}

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if f.challenges.count() != 0 {
		t.Fatalf("an unaudited challenge must not remain")
	}
	f.dispatcher.Wait()
	if len(f.notifier.challenges) != 0 {
		t.Fatalf("no code may be delivered for an unaudited challenge")
	}
}

// verifyAll submits code for email from n goroutines released together.
func (f *fixture) verifyAll(t *testing.T, n int, email, code string) []error {
	t.Helper()
	start := make(chan struct{})
	f.challenges.onRead = func() { <-start }
	defer func() { f.challenges.onRead = nil }()

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.auth.VerifyChallenge(context.Background(), email, code, nil)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestAuthSessionMachine_ConcurrentGuessesRespectCeiling(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	code := f.deliveredCode(t, "dev@x.com")

	const guesses = 12
	var mismatched, locked, denied int
	for _, err := range f.verifyAll(t, guesses, "dev@x.com", wrongCode(code)) {
		var mismatch *domain.ChallengeMismatchError
		switch {
		case errors.As(err, &mismatch):
			mismatched++
		case errors.Is(err, domain.ErrLocked):
			locked++
		case errors.Is(err, domain.ErrDenied):
			denied++
		default:
			t.Fatalf("unexpected verification result: %v", err)
		}
	}

	if mismatched != domain.MaxChallengeAttempts {
		t.Fatalf("expected %d compared guesses, got %d", domain.MaxChallengeAttempts, mismatched)
	}
	if locked != 1 || denied != guesses-domain.MaxChallengeAttempts-1 {
		t.Fatalf("expected one lockout and %d denials, got %d and %d", guesses-domain.MaxChallengeAttempts-1, locked, denied)
	}
	if got := len(f.store.entriesFor(domain.ActionMFAFailed)); got != domain.MaxChallengeAttempts {
		t.Fatalf("expected %d MFA_FAILED entries, got %d", domain.MaxChallengeAttempts, got)
	}
	for _, entry := range f.store.entriesFor(domain.ActionMFAFailed) {
		if n := entry.Details.(domain.MFAFailedDetails).AttemptCount; n > domain.MaxChallengeAttempts {
			t.Fatalf("attempt count %d passed the ceiling", n)
		}
	}
	if f.challenges.count() != 0 {
		t.Fatalf("a locked challenge must be cleared")
	}
	if f.challenges.calls != guesses {
		t.Fatalf("expected one store step per guess, got %d", f.challenges.calls)
	}
}

func TestAuthSessionMachine_ConcurrentCorrectCodeIssuesOneSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	if _, err := f.auth.BeginLogin(ctx, "dev@x.com", "Str0ng!Pass", nil); err != nil {
		t.Fatalf("BeginLogin returned error: %v", err)
	}
	code := f.deliveredCode(t, "dev@x.com")

	succeeded := 0
	for _, err := range f.verifyAll(t, 4, "dev@x.com", code) {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, domain.ErrDenied):
			t.Fatalf("expected later submissions to be denied, got %v", err)
		}
	}

	if succeeded != 1 {
		t.Fatalf("expected one session from one code, got %d", succeeded)
	}
	if got := len(f.store.entriesFor(domain.ActionLoginSuccess)); got != 1 {
		t.Fatalf("expected one LOGIN_SUCCESS entry, got %d", got)
	}
}

type countingHasher struct {
	port.PasswordHasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(password, encoded string) (bool, error) {
	h.verifies.Add(1)
	return h.PasswordHasher.Verify(password, encoded)
}

func TestAuthSessionMachine_UnknownEmailPaysHashCost(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	f.seedIdentity(t, "dev-1", "dev@x.com", domain.RoleDeveloper)

	hasher := &countingHasher{PasswordHasher: f.hasher}
	stores := f.store.stores()
	auth := NewAuthSessionMachine(f.store, stores.Identities, f.challenges, hasher,
		security.NewPasswordPolicy(security.PasswordPolicyOptions{}), f.tokens, f.ledger, f.dispatcher, AuthSessionOptions{})

	if _, err := auth.BeginLogin(ctx, "ghost@x.com", "Str0ng!Pass", nil); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if got := hasher.verifies.Load(); got != 1 {
		t.Fatalf("expected one verification for an unknown email, got %d", got)
	}

	if _, err := auth.BeginLogin(ctx, "dev@x.com", "Wr0ng!Pass", nil); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if got := hasher.verifies.Load(); got != 2 {
		t.Fatalf("expected one verification for a wrong password, got %d", got)
	}
}
