package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"
)

const defaultRevocationPrefix = "akira:revoked"

// SessionRevocationRepository keeps ended session token IDs. Each key carries the token's
// own expiry as its TTL and stores that expiry as the value.
type SessionRevocationRepository struct {
	client *red.Client
	keys   keyspace
	now    func() time.Time
}

func NewSessionRevocationRepository(client *red.Client, keyPrefix string) *SessionRevocationRepository {
	return &SessionRevocationRepository{
		client: client,
		keys:   newKeyspace(keyPrefix, defaultRevocationPrefix),
		now:    time.Now,
	}
}

// Revoke denylists tokenID until the given instant. A token that has already expired
// cannot be replayed and is not recorded.
func (r *SessionRevocationRepository) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	key, err := r.keys.key(tokenID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, key, encodeTime(until), ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked session: %w", err)
	}
	return nil
}

// Revoked reports whether tokenID is on the denylist.
func (r *SessionRevocationRepository) Revoked(ctx context.Context, tokenID string) (bool, error) {
	key, err := r.keys.key(tokenID)
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}

	err = r.client.Get(ctx, key).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, red.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("redis get revoked session: %w", err)
	}
}
