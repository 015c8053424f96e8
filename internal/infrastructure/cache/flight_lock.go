package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultFlightPrefix = "bundlesync:flight:"
	releaseTimeout      = 2 * time.Second
)

// releaseScript deletes the key only when it still carries the caller's
// token, so a holder whose lock expired cannot free a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LocalFlightLock is an in-process listing flight lock.
type LocalFlightLock struct {
	keys    *keySet
	janitor *janitor
}

// NewLocalFlightLock creates a lock table and starts its expiry sweeper.
func NewLocalFlightLock() *LocalFlightLock {
	keys := newKeySet()
	return &LocalFlightLock{keys: keys, janitor: startJanitor(keys, janitorInterval)}
}

// TryLock takes key for ttl unless a live holder has it.
func (l *LocalFlightLock) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	if !l.keys.setIfAbsent(key, token, ttl) {
		return nil, false, nil
	}
	return func() { l.keys.deleteIfToken(key, token) }, true, nil
}

// Close stops the sweeper.
func (l *LocalFlightLock) Close() error {
	l.janitor.Close()
	return nil
}

// RedisFlightLock shares listing flight locks across replicas.
type RedisFlightLock struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisFlightLock wraps a connected client. An empty prefix uses the default.
func NewRedisFlightLock(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisFlightLock {
	if keyPrefix == "" {
		keyPrefix = defaultFlightPrefix
	}
	return &RedisFlightLock{client: client, keyPrefix: keyPrefix, logger: logger}
}

// TryLock sets key with NX and a random token. The returned unlock never
// fails the caller; a release error only leaves the key to expire.
func (l *RedisFlightLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	full := l.keyPrefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire flight lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		// the job context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{full}, token).Err(); err != nil {
			l.logger.Warn("flight lock release failed, waiting for expiry",
				zap.String("key", key),
				zap.Duration("ttl", ttl),
				zap.Error(err),
			)
		}
	}
	return unlock, true, nil
}
