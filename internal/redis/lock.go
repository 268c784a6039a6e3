package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const bookingsLockKey = "lock:bookings"

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireBookingsLock attempts to take the single-writer lock on the booking collection.
// Returns true if the lock was acquired, false if another writer holds it.
func (s *LockStore) AcquireBookingsLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, bookingsLockKey, token, ttl).Result()
}

// ReleaseBookingsLock releases the lock if token still owns it.
func (s *LockStore) ReleaseBookingsLock(ctx context.Context, token string) error {
	return releaseScript.Run(ctx, s.client, []string{bookingsLockKey}, token).Err()
}
