// Package redis registers a Redis-backed memory cache so multiple processes
// sharing one database can also share cached reads.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/metrics"
	"github.com/memkeep/memkeep/internal/model"
	registrycache "github.com/memkeep/memkeep/internal/registry/cache"
	"github.com/redis/go-redis/v9"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "redis",
		Loader: func(ctx context.Context) (registrycache.MemoryCache, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.RedisURL == "" {
				return nil, fmt.Errorf("redis cache: MEMKEEP_REDIS_URL is required")
			}
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("redis cache: invalid url: %w", err)
			}
			return &Cache{client: redis.NewClient(opts)}, nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Cache stores memories as JSON under memkeep:memory:<id>.
type Cache struct {
	client *redis.Client
}

func key(id int64) string { return fmt.Sprintf("memkeep:memory:%d", id) }

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(ctx context.Context, id int64) (*model.Memory, error) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
		if metrics.CacheMissesTotal != nil {
			metrics.CacheMissesTotal.Inc()
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get: %w", err)
	}
	var m model.Memory
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("redis cache decode: %w", err)
	}
	if metrics.CacheHitsTotal != nil {
		metrics.CacheHitsTotal.Inc()
	}
	return &m, nil
}

func (c *Cache) Set(ctx context.Context, m *model.Memory, ttl time.Duration) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key(m.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (c *Cache) Remove(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("redis cache remove: %w", err)
	}
	return nil
}
