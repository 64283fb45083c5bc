package search

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// EmbeddingCache stores query embeddings keyed by folded query text.
type EmbeddingCache interface {
	Get(ctx context.Context, query string) ([]float32, bool, error)
	Set(ctx context.Context, query string, vec []float32) error
}

const redisKeyPrefix = "relgraph:qemb:"

// RedisEmbeddingCache keeps query embeddings in redis with a TTL.
type RedisEmbeddingCache struct {
	rdb   *goredis.Client
	model string
	ttl   time.Duration
}

// NewRedisEmbeddingCache connects to url (redis://...) and pings it.
func NewRedisEmbeddingCache(ctx context.Context, url, model string, ttl time.Duration) (*RedisEmbeddingCache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "search: parse redis url")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "search: redis ping")
	}
	return NewRedisEmbeddingCacheFromClient(rdb, model, ttl), nil
}

// NewRedisEmbeddingCacheFromClient wraps an existing client.
func NewRedisEmbeddingCacheFromClient(rdb *goredis.Client, model string, ttl time.Duration) *RedisEmbeddingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisEmbeddingCache{rdb: rdb, model: model, ttl: ttl}
}

// Get implements EmbeddingCache. A miss is (nil, false, nil).
func (c *RedisEmbeddingCache) Get(ctx context.Context, query string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(query)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "search: redis get")
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set implements EmbeddingCache.
func (c *RedisEmbeddingCache) Set(ctx context.Context, query string, vec []float32) error {
	if err := c.rdb.Set(ctx, c.key(query), encodeVector(vec), c.ttl).Err(); err != nil {
		return eris.Wrap(err, "search: redis set")
	}
	return nil
}

// Close closes the redis client.
func (c *RedisEmbeddingCache) Close() error { return c.rdb.Close() }

func (c *RedisEmbeddingCache) key(query string) string {
	return cacheKey(c.model, query)
}

func cacheKey(model, query string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + Fold(query)))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, eris.Errorf("search: corrupt cached vector of %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}

// MemoryEmbeddingCache is a process-local EmbeddingCache used when no redis
// url is configured.
type MemoryEmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
	max     int
}

// NewMemoryEmbeddingCache holds at most max entries; when full the cache is
// reset.
func NewMemoryEmbeddingCache(max int) *MemoryEmbeddingCache {
	if max <= 0 {
		max = 1024
	}
	return &MemoryEmbeddingCache{entries: make(map[string][]float32), max: max}
}

// Get implements EmbeddingCache.
func (c *MemoryEmbeddingCache) Get(_ context.Context, query string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[Fold(query)]
	return v, ok, nil
}

// Set implements EmbeddingCache.
func (c *MemoryEmbeddingCache) Set(_ context.Context, query string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.entries = make(map[string][]float32)
	}
	c.entries[Fold(query)] = vec
	return nil
}
