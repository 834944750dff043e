package idempotency

import (
	"context"
	"time"

	"github.com/parcelcraft/shipledger/internal/cache"
)

type memoryMarker struct {
	entries cache.Cache[string, struct{}]
}

// NewMemoryMarker returns a process-local Marker. Used in tests and
// single-process deployments without redis.
func NewMemoryMarker() Marker {
	return &memoryMarker{entries: cache.NewTTLCache[string, struct{}]()}
}

func (m *memoryMarker) HasApplied(ctx context.Context, awb string, charge ChargeType) (bool, error) {
	_ = ctx
	_, ok := m.entries.Get(markerKey(awb, charge))
	return ok, nil
}

func (m *memoryMarker) MarkApplied(ctx context.Context, awb string, charge ChargeType, ttl time.Duration) error {
	_ = ctx
	m.entries.Set(markerKey(awb, charge), struct{}{}, ttl)
	return nil
}
