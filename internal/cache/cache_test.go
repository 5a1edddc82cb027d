package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(marker string) *Result {
	return &Result{
		Data: []map[string]interface{}{
			{"sector": marker, "emissions_mt": 12.5},
		},
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "fp-1", sampleResult("transport"), time.Minute))

	got, hit, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "transport", got.Data[0]["sector"])

	_, hit, err = s.Get(ctx, "fp-unknown")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "fp-1", sampleResult("energy"), time.Minute))

	_, hit, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, hit)

	// Advance past the TTL: the entry behaves as a miss and is removed.
	now = now.Add(61 * time.Second)
	_, hit, err = s.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_CapacityEvictsLRU(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("fp-%d", i), sampleResult("x"), time.Minute))
	}

	// Touch fp-1 so fp-2 becomes the least recently used.
	_, hit, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, hit)

	require.NoError(t, s.Put(ctx, "fp-4", sampleResult("y"), time.Minute))
	assert.Equal(t, 3, s.Len())

	_, hit, _ = s.Get(ctx, "fp-2")
	assert.False(t, hit, "least recently used entry should have been evicted")
	for _, fp := range []string{"fp-1", "fp-3", "fp-4"} {
		_, hit, _ := s.Get(ctx, fp)
		assert.True(t, hit, "%s should survive", fp)
	}
}

func TestMemoryStore_PutReplacesExisting(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "fp-1", sampleResult("old"), time.Minute))
	require.NoError(t, s.Put(ctx, "fp-1", sampleResult("new"), time.Minute))
	assert.Equal(t, 1, s.Len())

	got, hit, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "new", got.Data[0]["sector"])
}

func TestMemoryStore_ZeroTTLIsNoop(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "fp-1", sampleResult("x"), 0))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				fp := fmt.Sprintf("fp-%d", i%60)
				_ = s.Put(ctx, fp, sampleResult("c"), time.Minute)
				_, _, _ = s.Get(ctx, fp)
			}
		}(g)
	}
	wg.Wait()

	// Capacity accounting must not drift under concurrent puts.
	assert.LessOrEqual(t, s.Len(), 50)
	assert.Equal(t, len(s.entries), s.lru.Len())
}

func TestRedisStore_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "fp-1", sampleResult("transport"), time.Minute))

	got, hit, err := s.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "transport", got.Data[0]["sector"])

	mr.FastForward(2 * time.Minute)

	_, hit, err = s.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, mr.Set("gateway:plan:fp-bad", "{not json"))

	_, hit, err := s.Get(ctx, "fp-bad")
	assert.False(t, hit)
	require.Error(t, err)
}
