package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "event_lock:"

// Deletes the key only if it still carries our token, so an expired lock
// taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica of the service. The TTL
// bounds how long a crashed holder can block an event.
type RedisLocker struct {
	Client     *redis.Client
	TTL        time.Duration
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Logger     *logger.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		Client:     client,
		TTL:        ttl,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   200 * time.Millisecond,
		Logger:     log,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	delay := r.RetryDelay

	for {
		ok, err := r.Client.SetNX(ctx, redisKey, token, r.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("redis lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
		if delay *= 2; delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.release(releaseCtx, redisKey, token); err != nil && r.Logger != nil {
				r.Logger.Error("LOCK", err.Error())
			}
		})
	}, nil
}

var errLockLost = errors.New("lock expired or taken over before release")

// release fails when the script errors or the key no longer carries token.
func (r *RedisLocker) release(ctx context.Context, redisKey, token string) error {
	deleted, err := releaseScript.Run(ctx, r.Client, []string{redisKey}, token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", redisKey, err)
	}
	if deleted == 0 {
		return fmt.Errorf("release %s: %w", redisKey, errLockLost)
	}
	return nil
}
