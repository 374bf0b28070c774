// Package cache drops generated page stylesheets kept in Redis.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pagekit/api/internal/logging"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "css:"
	scanBatch     = 100
)

// Invalidator removes derived artifacts after a layout write. Failures are
// logged by the implementation and never surface to the caller.
type Invalidator interface {
	Invalidate(ctx context.Context, postID int64)
	InvalidateAll(ctx context.Context)
	Enabled() bool
}

// RedisCache invalidates stylesheets stored under css:<postID>.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client), nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: defaultPrefix}
}

func (c *RedisCache) key(postID int64) string {
	return c.prefix + strconv.FormatInt(postID, 10)
}

func (c *RedisCache) Enabled() bool { return true }

func (c *RedisCache) Invalidate(ctx context.Context, postID int64) {
	if err := c.client.Del(ctx, c.key(postID)).Err(); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Int64("post_id", postID).Msg("cache invalidate failed")
	}
}

// InvalidateAll walks the keyspace with SCAN so large caches never block
// Redis the way KEYS would.
func (c *RedisCache) InvalidateAll(ctx context.Context) {
	deleted, err := c.deleteMatching(ctx, c.prefix+"*")
	log := logging.FromContext(ctx)
	if err != nil {
		log.Warn().Err(err).Int64("deleted", deleted).Msg("cache flush failed")
		return
	}
	log.Debug().Int64("deleted", deleted).Msg("cache flushed")
}

func (c *RedisCache) deleteMatching(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete keys: %w", err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Noop is used when no Redis is configured.
type Noop struct{}

func (Noop) Invalidate(context.Context, int64) {}
func (Noop) InvalidateAll(context.Context)     {}
func (Noop) Enabled() bool                     { return false }
