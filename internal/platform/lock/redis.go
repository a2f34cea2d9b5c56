package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

const (
	keyPrefix = "registrar:lock:"

	defaultTTL        = 10 * time.Second
	defaultMinBackoff = 10 * time.Millisecond
	defaultMaxBackoff = 250 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica using the same Redis. Locks expire
// after the TTL so a crashed holder cannot block a key forever.
type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	timeout    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
}

type RedisOption func(*Redis)

// WithTTL sets how long a lock survives without release.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithWaitTimeout bounds waiting when the caller's context has no deadline.
func WithWaitTimeout(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithBackoff(minBackoff, maxBackoff time.Duration) RedisOption {
	return func(r *Redis) {
		if minBackoff > 0 && maxBackoff >= minBackoff {
			r.minBackoff = minBackoff
			r.maxBackoff = maxBackoff
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:     client,
		ttl:        defaultTTL,
		timeout:    defaultLockTimeout,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Lock retries SET NX with exponential backoff until acquired or the context
// ends. Connection failures surface as sentinel.ErrUnavailable.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	redisKey := keyPrefix + key
	token := uuid.NewString()
	backoff := r.minBackoff
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w: %w", key, sentinel.ErrUnavailable, err)
		}
		if ok {
			return r.releaser(redisKey, token), nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeTimeout, "timed out waiting for lock")
			}
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "lock aborted: context cancelled")
		case <-timer.C:
		}
		backoff = min(backoff*2, r.maxBackoff)
	}
}

func (r *Redis) releaser(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done; release on a fresh one.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err()
		})
	}
}
