package comp

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/lolplq101/valcomps/internal/domain"
)

const previewKeyPrefix = "valcomps:shared:"

type redisPreviewCache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisPreviewCache caches resolved previews in Redis. Shared records are
// write-once, so entries never need invalidation; the TTL only bounds memory.
func NewRedisPreviewCache(client *redis.Client, ttl time.Duration) PreviewCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisPreviewCache{client: client, ttl: ttl, timeout: 250 * time.Millisecond}
}

func (c *redisPreviewCache) Get(ctx context.Context, codeKey string) (*domain.SharedCompPreview, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(ctx, previewKeyPrefix+codeKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var preview domain.SharedCompPreview
	if err := json.Unmarshal(raw, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

func (c *redisPreviewCache) Set(ctx context.Context, codeKey string, preview *domain.SharedCompPreview) error {
	raw, err := json.Marshal(preview)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Set(ctx, previewKeyPrefix+codeKey, raw, c.ttl).Err()
}
