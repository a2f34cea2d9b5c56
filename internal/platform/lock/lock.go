// Package lock serializes work per key, in process or across replicas.
package lock

import (
	"context"
	"sync"
	"time"

	dErrors "registrar/pkg/domain-errors"
)

// Locker acquires an exclusive lock on key. The returned func releases it and
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// numShards trades memory for contention; keys hash onto shards with FNV-1a.
const numShards = 128

const defaultLockTimeout = 5 * time.Second

// Sharded is an in-process Locker. Distinct keys may share a shard, which only
// costs throughput.
type Sharded struct {
	shards  [numShards]chan struct{}
	timeout time.Duration
}

// NewSharded returns a Sharded locker. A zero timeout uses five seconds when
// the caller's context has no deadline.
func NewSharded(timeout time.Duration) *Sharded {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	s := &Sharded{timeout: timeout}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	return s
}

func (s *Sharded) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := s.shards[hashKey(key)%numShards]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for lock")
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-shard })
	}, nil
}

// hashKey is FNV-1a over the key bytes.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
