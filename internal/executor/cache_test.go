package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// TestCacheDoCoalescesConcurrentMisses is property 8's concurrency half:
// many simultaneous callers for the same fingerprint must spawn the
// producer exactly once.
func TestCacheDoCoalescesConcurrentMisses(t *testing.T) {
	cache, err := NewCache(t.TempDir(), time.Hour, zap.NewNop().Sugar())
	require.NoError(t, err)

	var calls int64
	produce := func() (protocol.Result, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return protocol.Result{Classification: protocol.Sat}, nil
	}

	var wg sync.WaitGroup
	results := make([]protocol.Result, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.Do("fp-shared", produce)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, calls)
	for _, res := range results {
		require.Equal(t, protocol.Sat, res.Classification)
	}
}

// TestCacheDoReturnsFreshEntryWithoutCallingProducer is property 8's
// idempotence half: a second call with the same fingerprint after the
// first has completed must not invoke produce again.
func TestCacheDoReturnsFreshEntryWithoutCallingProducer(t *testing.T) {
	cache, err := NewCache(t.TempDir(), time.Hour, zap.NewNop().Sugar())
	require.NoError(t, err)

	var calls int64
	produce := func() (protocol.Result, error) {
		atomic.AddInt64(&calls, 1)
		return protocol.Result{Classification: protocol.Unsat}, nil
	}

	first, err := cache.Do("fp", produce)
	require.NoError(t, err)
	second, err := cache.Do("fp", produce)
	require.NoError(t, err)

	require.EqualValues(t, 1, calls)
	require.Equal(t, first, second)
}

func TestCacheGetMissesOnExpiredEntry(t *testing.T) {
	cache, err := NewCache(t.TempDir(), time.Millisecond, zap.NewNop().Sugar())
	require.NoError(t, err)

	cache.put("fp", protocol.Result{Classification: protocol.Sat})
	time.Sleep(5 * time.Millisecond)

	_, ok := cache.Get("fp")
	require.False(t, ok)
}
