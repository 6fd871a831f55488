package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCache_MissThenHit(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewResultCache(c, nil, WithPrefix("test:"), WithTTL(time.Hour))
	ctx := context.Background()

	v, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	require.NoError(t, cache.Set(ctx, "k", []byte(`{"a":1}`)))
	assert.True(t, mr.Exists("test:k"))
	ttl := mr.TTL("test:k")
	assert.True(t, ttl >= 54*time.Minute && ttl <= 66*time.Minute, ttl)

	v, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(v))
}

func TestResultCache_NoTTL(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewResultCache(c, nil, WithTTL(0))
	require.NoError(t, cache.Set(context.Background(), "k", []byte("v")))
	assert.Zero(t, mr.TTL("fragmenter:k"))
}

func TestResultCache_ConcurrentGets(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, mr.Set("fragmenter:shared", "payload"))
	cache := NewResultCache(c, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := cache.Get(context.Background(), "shared")
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "payload", string(v))
		}()
	}
	wg.Wait()
}

func TestResultCache_Invalidate(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewResultCache(c, nil)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, k, []byte(k)))
	}
	require.NoError(t, mr.Set("other:key", "x"))

	n, err := cache.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.True(t, mr.Exists("other:key"))
}

func TestResultCache_ClosedClient(t *testing.T) {
	c, _ := newTestClient(t)
	cache := NewResultCache(c, nil)
	require.NoError(t, c.Close())

	_, _, err := cache.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, cache.Set(context.Background(), "k", nil), ErrClientClosed)
}
