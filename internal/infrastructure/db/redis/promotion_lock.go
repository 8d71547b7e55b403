package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rbac-authz/auth-api/internal/core/ports"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultRetryWait = 50 * time.Millisecond
)

// ErrLockTimeout is returned when the lock could not be taken before the
// caller's context ended.
var ErrLockTimeout = errors.New("promotion lock not acquired")

// releaseScript deletes the key only when it still holds our token, so an
// expired holder cannot drop a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ ports.PromotionLocker = (*PromotionLock)(nil)

// PromotionLock serializes promotions per target user across API replicas.
// Key format: lock:promote:<user_id>
type PromotionLock struct {
	client    *redis.Client
	ttl       time.Duration
	retryWait time.Duration
	log       zerolog.Logger
}

// NewPromotionLock wraps the given Redis client. A zero ttl uses the default.
func NewPromotionLock(client *redis.Client, ttl time.Duration, log zerolog.Logger) *PromotionLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &PromotionLock{
		client:    client,
		ttl:       ttl,
		retryWait: defaultRetryWait,
		log:       log,
	}
}

// Acquire blocks until the lock for targetUserID is held or ctx is done.
func (l *PromotionLock) Acquire(ctx context.Context, targetUserID string) (func(), error) {
	key := lockKey(targetUserID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("promotion lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-time.After(l.retryWait):
		}
	}

	release := func() {
		// Release must run even when the request context is already gone.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.client, []string{key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("promotion lock release failed")
		}
	}
	return release, nil
}

func lockKey(targetUserID string) string {
	return fmt.Sprintf("lock:promote:%s", targetUserID)
}
