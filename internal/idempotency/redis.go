package idempotency

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type redisMarker struct {
	client *redis.Client
}

// NewRedisMarker returns a Marker shared across worker processes.
func NewRedisMarker(client *redis.Client) Marker {
	return &redisMarker{client: client}
}

func (m *redisMarker) HasApplied(ctx context.Context, awb string, charge ChargeType) (bool, error) {
	n, err := m.client.Exists(ctx, markerKey(awb, charge)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *redisMarker) MarkApplied(ctx context.Context, awb string, charge ChargeType, ttl time.Duration) error {
	// NX keeps the TTL of the first mark; re-marking must not extend it.
	return m.client.SetNX(ctx, markerKey(awb, charge), 1, ttl).Err()
}
