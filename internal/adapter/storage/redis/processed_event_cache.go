package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ProcessedEventCache implements ports.ProcessedEventCache. It only ever
// short-circuits; the database guard row stays authoritative.
type ProcessedEventCache struct {
	client *goredis.Client
	prefix string
}

// NewProcessedEventCache creates a new Redis-backed processed-event cache.
func NewProcessedEventCache(client *goredis.Client) *ProcessedEventCache {
	return &ProcessedEventCache{
		client: client,
		prefix: "event:processed:",
	}
}

func (c *ProcessedEventCache) key(provider, eventID string) string {
	return c.prefix + provider + ":" + eventID
}

// IsProcessed reports whether the event was recorded as processed.
func (c *ProcessedEventCache) IsProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis processed event get: %w", err)
	}
	return n == 1, nil
}

// MarkProcessed records the event with a TTL.
func (c *ProcessedEventCache) MarkProcessed(ctx context.Context, provider, eventID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(provider, eventID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis processed event set: %w", err)
	}
	return nil
}
