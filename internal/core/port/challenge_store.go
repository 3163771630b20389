package port

import (
	"context"
	"time"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// ChallengeStore keeps one pending login challenge per email with a TTL.
type ChallengeStore interface {
	// Put replaces any existing challenge for the email (last write wins).
	Put(ctx context.Context, challenge domain.PendingChallenge, ttl time.Duration) error
	// Attempt checks expiry, the attempt ceiling and the code digest as one atomic step.
	// A match consumes the challenge so a code authenticates at most once. Expired and
	// exhausted challenges are cleared. A mismatch counts one attempt, never past maxAttempts.
	Attempt(ctx context.Context, email, codeDigest string, maxAttempts int, at time.Time) (domain.ChallengeAttempt, error)
	// Delete discards the challenge. A missing challenge yields repository.ErrNotFound.
	Delete(ctx context.Context, email string) error
}
