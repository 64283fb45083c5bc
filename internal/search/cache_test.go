package search

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodec(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75e-5}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey("m", "KYB  Compliance"), cacheKey("m", "kyb compliance"))
	assert.NotEqual(t, cacheKey("m1", "kyb"), cacheKey("m2", "kyb"))
	assert.Contains(t, cacheKey("m", "q"), redisKeyPrefix)
}

func TestMemoryEmbeddingCache(t *testing.T) {
	c := NewMemoryEmbeddingCache(2)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "q")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "Payments", []float32{1}))
	v, ok, _ := c.Get(ctx, "payments")
	assert.True(t, ok)
	assert.Equal(t, []float32{1}, v)

	require.NoError(t, c.Set(ctx, "b", []float32{2}))
	require.NoError(t, c.Set(ctx, "c", []float32{3}))
	_, ok, _ = c.Get(ctx, "payments")
	assert.False(t, ok)
}

func TestRedisEmbeddingCache_Unreachable(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisEmbeddingCacheFromClient(rdb, "model", 0)
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "q")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), "q", []float32{1}))
}

func TestNewRedisEmbeddingCache_BadURL(t *testing.T) {
	_, err := NewRedisEmbeddingCache(context.Background(), "not-a-url", "m", time.Minute)
	assert.Error(t, err)
}
