package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/repository"
)

const (
	defaultChallengePrefix = "akira:challenge"

	fieldCodeDigest = "code_digest"
	fieldIdentityID = "identity_id"
	fieldCreatedAt  = "created_at"
	fieldExpiresAt  = "expires_at"
	fieldAttempts   = "attempts"
)

// attemptChallenge resolves one verification attempt atomically.
// KEYS[1] challenge hash. ARGV: code digest, attempt ceiling, attempt time in unix ms.
// Returns {verdict, attempts, identity_id}.
var attemptChallenge = red.NewScript(`
local fields = redis.call("HMGET", KEYS[1], "code_digest", "identity_id", "expires_at", "attempts")
if not fields[1] then
  return {"missing", 0, ""}
end
local identity = fields[2] or ""
local attempts = tonumber(fields[4]) or 0
if tonumber(ARGV[3]) > (tonumber(fields[3]) or 0) then
  redis.call("DEL", KEYS[1])
  return {"expired", attempts, identity}
end
if attempts >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return {"exhausted", attempts, identity}
end
if fields[1] == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return {"consumed", attempts, identity}
end
attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
return {"mismatch", attempts, identity}
`)

// ChallengeRepository stores pending login challenges as Redis hashes keyed by email.
type ChallengeRepository struct {
	client *red.Client
	keys   keyspace
}

// NewChallengeRepository wires a Redis client into a challenge store.
func NewChallengeRepository(client *red.Client, keyPrefix string) *ChallengeRepository {
	return &ChallengeRepository{
		client: client,
		keys:   newKeyspace(keyPrefix, defaultChallengePrefix),
	}
}

// Put replaces any challenge for the email and arms the TTL.
func (r *ChallengeRepository) Put(ctx context.Context, challenge domain.PendingChallenge, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	key, err := r.keys.key(challenge.Email)
	if err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	if challenge.CodeDigest == "" {
		return errors.New("code digest must not be empty")
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCodeDigest: challenge.CodeDigest,
		fieldIdentityID: challenge.IdentityID,
		fieldCreatedAt:  encodeTime(challenge.CreatedAt),
		fieldExpiresAt:  encodeTime(challenge.ExpiresAt),
		fieldAttempts:   strconv.Itoa(challenge.AttemptCount),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}
	return nil
}

// Attempt implements port.ChallengeStore with a single script call.
func (r *ChallengeRepository) Attempt(ctx context.Context, email, codeDigest string, maxAttempts int, at time.Time) (domain.ChallengeAttempt, error) {
	if maxAttempts <= 0 {
		return domain.ChallengeAttempt{}, errors.New("max attempts must be positive")
	}
	key, err := r.keys.key(email)
	if err != nil {
		return domain.ChallengeAttempt{}, fmt.Errorf("attempt challenge: %w", err)
	}

	reply, err := attemptChallenge.Run(ctx, r.client, []string{key},
		codeDigest, maxAttempts, encodeTime(at),
	).Slice()
	if err != nil {
		return domain.ChallengeAttempt{}, fmt.Errorf("redis attempt challenge: %w", err)
	}
	return parseAttempt(reply)
}

func parseAttempt(reply []any) (domain.ChallengeAttempt, error) {
	if len(reply) != 3 {
		return domain.ChallengeAttempt{}, fmt.Errorf("challenge attempt reply has %d fields", len(reply))
	}
	verdict, ok := reply[0].(string)
	if !ok {
		return domain.ChallengeAttempt{}, fmt.Errorf("challenge verdict has type %T", reply[0])
	}
	attempts, ok := reply[1].(int64)
	if !ok {
		return domain.ChallengeAttempt{}, fmt.Errorf("challenge attempts have type %T", reply[1])
	}
	identityID, _ := reply[2].(string)

	switch v := domain.ChallengeVerdict(verdict); v {
	case domain.ChallengeConsumed, domain.ChallengeMismatched, domain.ChallengeAbsent,
		domain.ChallengeLapsed, domain.ChallengeLockedOut:
		return domain.ChallengeAttempt{Verdict: v, IdentityID: identityID, AttemptCount: int(attempts)}, nil
	default:
		return domain.ChallengeAttempt{}, fmt.Errorf("unknown challenge verdict %q", verdict)
	}
}

// Delete discards the challenge. A missing challenge yields repository.ErrNotFound.
func (r *ChallengeRepository) Delete(ctx context.Context, email string) error {
	key, err := r.keys.key(email)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis delete challenge: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}
	return nil
}
