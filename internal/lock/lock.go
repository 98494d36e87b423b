// Package lock implements keyed mutual exclusion on top of Redis.  It
// is the only mutual-exclusion primitive in the service: booking
// creation serializes conflict checks through it, and every
// reconciliation tick takes a short-lived lock keyed by tick name so
// that multiple scheduler replicas do not race the same sweep.
//
// Acquisition failure is not an error.  It signals contention and
// callers must treat it as a normal flow-control outcome.  There is no
// internal retry.
package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service provides TTL-bounded locks backed by a single Redis instance.
type Service struct {
	rdb *redis.Client
}

// New returns a lock Service bound to the given Redis client.
func New(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

// releaseOwnedScript deletes the key only when its value still matches
// the owner token, so an expired holder cannot clobber a lock that has
// since been re-acquired by someone else.
var releaseOwnedScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// Acquire attempts to take the lock for key with the given owner token
// and TTL.  It returns (true, nil) when the lock was free, (false, nil)
// when another owner holds a live lock, and a non-nil error only on
// Redis failure.  The semantics are a single atomic
// set-if-absent-with-expiry; there is exactly one attempt.
func (s *Service) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, owner, ttl).Result()
}

// Release unconditionally clears the key.  This is the minimal contract:
// the single-writer-per-request pattern guarantees the caller is the
// holder on every exit path of the locked section.
func (s *Service) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// ReleaseOwned clears the key only if it is still held by owner.  It
// returns true when the lock was released, false when the key had
// already expired or been taken over.
func (s *Service) ReleaseOwned(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseOwnedScript.Run(ctx, s.rdb, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
