package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DeliveryJobsKey is the list consumed by the delivery workers.
const DeliveryJobsKey = "delivery:jobs"

// DeliveryQueue implements ports.DeliveryScheduler. A SET NX marker per
// order keeps a redelivered webhook from scheduling delivery twice.
type DeliveryQueue struct {
	client    *goredis.Client
	prefix    string
	dedupeTTL time.Duration
}

// NewDeliveryQueue creates a new Redis-backed delivery queue.
func NewDeliveryQueue(client *goredis.Client, dedupeTTL time.Duration) *DeliveryQueue {
	return &DeliveryQueue{
		client:    client,
		prefix:    "delivery:dedupe:",
		dedupeTTL: dedupeTTL,
	}
}

// Enqueue pushes the order onto the jobs list unless it was already scheduled.
func (q *DeliveryQueue) Enqueue(ctx context.Context, orderID uuid.UUID) (bool, error) {
	key := q.prefix + orderID.String()
	result, err := q.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  q.dedupeTTL,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis delivery dedupe: %w", err)
	}
	if result != "OK" {
		return false, nil
	}

	if err := q.client.RPush(ctx, DeliveryJobsKey, orderID.String()).Err(); err != nil {
		// Drop the marker so a retry can schedule it.
		q.client.Del(ctx, key)
		return false, fmt.Errorf("redis delivery push: %w", err)
	}
	return true, nil
}

// Pending returns the number of jobs waiting in the list.
func (q *DeliveryQueue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, DeliveryJobsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delivery len: %w", err)
	}
	return n, nil
}
