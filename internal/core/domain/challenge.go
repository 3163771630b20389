package domain

import "time"

const (
	// ChallengeCodeLength is the number of digits in a login challenge code.
	ChallengeCodeLength = 6
	// DefaultChallengeTTL bounds how long a challenge may be answered.
	DefaultChallengeTTL = 5 * time.Minute
	// MaxChallengeAttempts is the hard lockout ceiling for wrong codes.
	MaxChallengeAttempts = 5
)

// PendingChallenge is the ephemeral second factor keyed by normalized email.
// CodeDigest holds a one-way digest of the code, never the code itself.
type PendingChallenge struct {
	Email        string
	IdentityID   string
	CodeDigest   string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	AttemptCount int
}

// Expired reports whether the challenge window has passed at the supplied moment.
func (c PendingChallenge) Expired(at time.Time) bool {
	return at.After(c.ExpiresAt)
}

// Exhausted reports whether the attempt ceiling is reached.
func (c PendingChallenge) Exhausted(limit int) bool {
	return c.AttemptCount >= limit
}

// ChallengeVerdict is the outcome of one atomic attempt against a pending challenge.
type ChallengeVerdict string

const (
	// ChallengeConsumed means the code matched and the challenge is gone.
	ChallengeConsumed ChallengeVerdict = "consumed"
	// ChallengeMismatched means the code was wrong and one attempt was counted.
	ChallengeMismatched ChallengeVerdict = "mismatch"
	// ChallengeAbsent means no challenge exists for the email.
	ChallengeAbsent ChallengeVerdict = "missing"
	// ChallengeLapsed means the window passed. The challenge was cleared.
	ChallengeLapsed ChallengeVerdict = "expired"
	// ChallengeLockedOut means the attempt ceiling was already reached. The challenge was cleared.
	ChallengeLockedOut ChallengeVerdict = "exhausted"
)

// ChallengeAttempt reports what a single verification attempt did to the stored challenge.
// AttemptCount is the counter after the attempt.
type ChallengeAttempt struct {
	Verdict      ChallengeVerdict
	IdentityID   string
	AttemptCount int
}
