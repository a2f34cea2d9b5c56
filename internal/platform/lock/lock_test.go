package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "registrar/pkg/domain-errors"
)

func TestSharded_SerializesSameKey(t *testing.T) {
	locker := NewSharded(time.Second)
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "1234567890")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestSharded_TimesOutWhileHeld(t *testing.T) {
	locker := NewSharded(20 * time.Millisecond)
	unlock, err := locker.Lock(context.Background(), "key")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), "key")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestSharded_UnlockIsIdempotent(t *testing.T) {
	locker := NewSharded(time.Second)
	unlock, err := locker.Lock(context.Background(), "key")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = locker.Lock(context.Background(), "key")
	require.NoError(t, err)
	unlock()
}

func TestSharded_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSharded(0).Lock(ctx, "key")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestHashKey_Spreads(t *testing.T) {
	seen := make(map[uint32]bool)
	for _, k := range []string{"1234567890", "1234567891", "0987654321", "5555555555"} {
		seen[hashKey(k)%numShards] = true
	}
	assert.Greater(t, len(seen), 1)
}
