package keyedlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Locker is the interface both Registry and RedisLocker satisfy, letting
// the reconciler depend on either without knowing which is wired.
type Locker interface {
	Lock(key string) func()
}

// RedisLocker serializes per-credential critical sections across gateway
// instances using a SET NX PX advisory lock, so a second process's poller
// can't race the reconciliation/rebase section a first process is already
// running for the same credential. It falls back to granting the lock
// immediately (logging a warning) if Redis is unreachable — a reconciler
// critical section must never deadlock waiting on an external dependency,
// since a stuck lock there stalls payment matching entirely.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	keyFunc func(string) string
}

// NewRedisLocker connects to addr (a redis:// URL) and returns a Locker.
// ttl bounds how long a lock can be held before it self-expires, guarding
// against a crashed holder leaving the key set forever.
func NewRedisLocker(addr string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: redis.NewClient(opts),
		ttl:    ttl,
		keyFunc: func(key string) string {
			return "qiupay:reconciler:lock:" + key
		},
	}, nil
}

// Lock blocks until it acquires the advisory lock for key (retrying on a
// short interval), then returns an unlock function that releases it only
// if the token still matches — so a lock this holder lost to TTL expiry
// can't be released out from under whoever re-acquired it.
func (l *RedisLocker) Lock(key string) func() {
	ctx := context.Background()
	redisKey := l.keyFunc(key)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			log.Warn().Err(err).Str("credential_id", key).Msg("keyedlock.redis_unreachable_fallback")
			return func() {}
		}
		if ok {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	return func() {
		script := redis.NewScript(`
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			end
			return 0
		`)
		if err := script.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			log.Warn().Err(err).Str("credential_id", key).Msg("keyedlock.redis_unlock_failed")
		}
	}
}

// Close releases the underlying Redis client connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
