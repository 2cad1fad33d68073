package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/redis/go-redis/v9"
)

// ViewCache stores assembled public document views in Redis as JSON under
// "<prefix><slug-or-id>" with a TTL.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewViewCache(client *redis.Client, ttl time.Duration) *ViewCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ViewCache{client: client, ttl: ttl, prefix: "article:view:"}
}

// Get returns (nil, false, nil) on a miss.
func (c *ViewCache) Get(ctx context.Context, key string) (*article.DocumentView, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var v article.DocumentView
	if err := json.Unmarshal(b, &v); err != nil {
		// unreadable entries are dropped so the next read repopulates them
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *ViewCache) Set(ctx context.Context, key string, v *article.DocumentView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, b, c.ttl).Err()
}

// Invalidate removes the cached views stored under any of keys.
func (c *ViewCache) Invalidate(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			full = append(full, c.prefix+k)
		}
	}
	if len(full) == 0 {
		return nil
	}
	return c.client.Del(ctx, full...).Err()
}
