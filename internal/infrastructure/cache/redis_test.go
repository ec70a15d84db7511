package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valcommerce/storefront/internal/domain"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	cache := NewRedisCacheWithClient(client, "test:")
	t.Cleanup(func() { cache.Close() })
	return cache, server
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, server := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "paged:all", []byte(`{"page":1}`), 30*time.Second))

	got, err := cache.Get(ctx, "paged:all")
	require.NoError(t, err)
	assert.Equal(t, `{"page":1}`, string(got))

	assert.True(t, server.Exists("test:paged:all"))
	assert.Equal(t, 30*time.Second, server.TTL("test:paged:all"))
}

func TestRedisCache_Expiry(t *testing.T) {
	cache, server := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Second))
	server.FastForward(2 * time.Second)

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_DeleteAndExists(t *testing.T) {
	cache, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_Unavailable(t *testing.T) {
	cache, server := newTestRedis(t)
	server.Close()

	_, err := cache.Get(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)

	err = cache.Set(context.Background(), "k", []byte("v"), time.Minute)
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}

func TestNewRedisCache(t *testing.T) {
	server := miniredis.RunT(t)

	cache, err := NewRedisCache(context.Background(), "redis://"+server.Addr()+"/0")
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Set(context.Background(), "k", []byte("v"), time.Minute))
	assert.True(t, server.Exists(defaultKeyPrefix+"k"))
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not-a-url")
	assert.Error(t, err)
}
