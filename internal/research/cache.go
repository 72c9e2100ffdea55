package research

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultCacheTTL is how long a tool result stays cached.
const DefaultCacheTTL = 24 * time.Hour

// Cache stores serialized tool results by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Prune removes expired entries and reports how many went.
	Prune(ctx context.Context) (int, error)
}

// CacheKey derives the cache key of an operation from its parameters.
// Parameters are re-encoded through a map so key order never matters.
func CacheKey(op Op, params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", eris.Wrap(err, "research: marshal cache params")
	}
	var canonical any
	if err := json.Unmarshal(raw, &canonical); err != nil {
		return "", eris.Wrap(err, "research: canonicalize cache params")
	}
	norm, err := json.Marshal(canonical)
	if err != nil {
		return "", eris.Wrap(err, "research: marshal canonical params")
	}
	sum := sha256.Sum256(append([]byte(string(op)+":"), norm...))
	return hex.EncodeToString(sum[:]), nil
}

// ToolCacheStore is the subset of the store backing StoreCache.
type ToolCacheStore interface {
	GetToolCache(ctx context.Context, key string) ([]byte, error)
	SetToolCache(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredToolCache(ctx context.Context) (int, error)
}

// StoreCache keeps tool results in the run database.
type StoreCache struct {
	store ToolCacheStore
}

// NewStoreCache creates a cache over the store's tool_cache table.
func NewStoreCache(st ToolCacheStore) *StoreCache {
	return &StoreCache{store: st}
}

func (c *StoreCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.store.GetToolCache(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

func (c *StoreCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.store.SetToolCache(ctx, key, data, ttl)
}

func (c *StoreCache) Prune(ctx context.Context) (int, error) {
	return c.store.DeleteExpiredToolCache(ctx)
}

// RedisCache keeps tool results in Redis; expiry is Redis's own TTL.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache creates a cache over a Redis client.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "research: redis get")
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return eris.Wrap(err, "research: redis set")
	}
	return nil
}

// Prune is a no-op; Redis expires keys itself.
func (c *RedisCache) Prune(context.Context) (int, error) {
	return 0, nil
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Prune(context.Context) (int, error)                       { return 0, nil }
