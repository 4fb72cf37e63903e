package ap

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const agingCacheKey = "ap:aging:snapshot"

// AgingCache stores the current AP aging snapshot in Redis with a bounded TTL.
type AgingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAgingCache constructs the cache.
func NewAgingCache(client *redis.Client, ttl time.Duration) *AgingCache {
	return &AgingCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot, or nil on a miss.
func (c *AgingCache) Get(ctx context.Context) (*AgingBucket, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, agingCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var bucket AgingBucket
	if err := json.Unmarshal(data, &bucket); err != nil {
		return nil, err
	}
	return &bucket, nil
}

// Set stores the snapshot.
func (c *AgingCache) Set(ctx context.Context, bucket AgingBucket) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(bucket)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, agingCacheKey, data, c.ttl).Err()
}

// Invalidate drops the snapshot.
func (c *AgingCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, agingCacheKey).Err()
}
