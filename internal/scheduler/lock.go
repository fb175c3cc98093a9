package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"outreach_backend/platform/config"
)

const cycleLockKey = "outreach:cycle:lock"

// releaseScript deletes the key only when this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out only while this holder owns the key.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var errLockLost = errors.New("cycle lock no longer held")

// RedisLock guards cycles across processes with SET NX and a TTL. The
// holder renews the TTL every third of it while a cycle runs.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	every  time.Duration
}

func NewRedisLock(cfg config.SchedulerConfig) (*RedisLock, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redisOptions(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return newRedisLock(redis.NewClient(opt), uniqueTTL(cfg)), nil
}

func newRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: cycleLockKey, token: uuid.NewString(), ttl: ttl, every: ttl / 3}
}

func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire cycle lock: %w", err)
	}
	return ok, nil
}

// Keep renews the lock until ctx is done. It returns errLockLost when
// another holder took the key or it expired between renewals.
func (l *RedisLock) Keep(ctx context.Context) error {
	ticker := time.NewTicker(l.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ok, err := l.renew(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if !ok {
				return errLockLost
			}
		}
	}
}

func (l *RedisLock) renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew cycle lock: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLock) Unlock(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release cycle lock: %w", err)
	}
	return nil
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}
