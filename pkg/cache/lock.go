package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock owned by someone else.
var ErrLockNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a token guarded mutex stored in Redis.
type Lock struct {
	client *redis.Client
}

// NewLock wraps client. A nil client yields a lock that can never be acquired.
func NewLock(client *redis.Client) *Lock {
	return &Lock{client: client}
}

// Available reports whether the lock is backed by Redis.
func (l *Lock) Available() bool {
	return l != nil && l.client != nil
}

// Acquire sets key with a fresh token unless it already exists. The returned
// token must be passed to Release.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !l.Available() {
		return "", false, fmt.Errorf("acquire %s: redis not configured", key)
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes key only while it still carries token.
func (l *Lock) Release(ctx context.Context, key, token string) error {
	if !l.Available() {
		return nil
	}
	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}
