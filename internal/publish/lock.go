package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// RedisJobLock is a SET NX PX lock keyed by job name
type RedisJobLock struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	newToken func() string
}

// NewRedisJobLock creates a lock whose entries expire after ttl
func NewRedisJobLock(client *redis.Client, prefix string, ttl time.Duration) *RedisJobLock {
	if prefix == "" {
		prefix = "signals:"
	}
	return &RedisJobLock{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		newToken: func() string { return uuid.NewString() },
	}
}

func (l *RedisJobLock) key(name string) string {
	return l.prefix + "lock:" + name
}

// TryAcquire takes the lock for name. When it is held elsewhere ok is false.
// The returned release func is safe to call once the job finishes.
func (l *RedisJobLock) TryAcquire(ctx context.Context, name string) (release func(context.Context) error, ok bool, err error) {
	token := l.newToken()
	key := l.key(name)

	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
