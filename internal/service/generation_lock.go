package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// generationLocker serialises generation runs of one school term. Lock
// returns GENERATION_LOCKED when another run holds key.
type generationLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func generationLockKey(schoolID, termID string) string {
	return fmt.Sprintf("timetable:lock:%s:%s", schoolID, termID)
}

// RedisGenerationLocker shares the lock between API replicas.
type RedisGenerationLocker struct {
	lock   *cache.Lock
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGenerationLocker builds a Redis backed locker. The ttl bounds how
// long a crashed run can keep the term locked.
func NewRedisGenerationLocker(lock *cache.Lock, ttl time.Duration, logger *zap.Logger) *RedisGenerationLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGenerationLocker{lock: lock, ttl: ttl, logger: logger}
}

// Lock implements generationLocker.
func (l *RedisGenerationLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, ok, err := l.lock.Acquire(ctx, key, l.ttl)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to acquire generation lock")
	}
	if !ok {
		return nil, appErrors.ErrGenerationLocked
	}
	return func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.lock.Release(releaseCtx, key, token); err != nil {
			if errors.Is(err, cache.ErrLockNotHeld) {
				l.logger.Warn("generation lock expired before release", zap.String("key", key))
				return
			}
			l.logger.Error("failed to release generation lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// NewGenerationLocker picks the Redis locker when lock is backed by a client
// and falls back to an in-process locker otherwise.
func NewGenerationLocker(lock *cache.Lock, ttl time.Duration, logger *zap.Logger) generationLocker {
	if lock == nil || !lock.Available() {
		return NewLocalGenerationLocker()
	}
	return NewRedisGenerationLocker(lock, ttl, logger)
}

// LocalGenerationLocker serialises runs inside a single process.
type LocalGenerationLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalGenerationLocker creates an in-process locker.
func NewLocalGenerationLocker() *LocalGenerationLocker {
	return &LocalGenerationLocker{held: make(map[string]struct{})}
}

// Lock implements generationLocker without waiting.
func (l *LocalGenerationLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, appErrors.ErrGenerationLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
