package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryMarker(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMarker()

	applied, err := m.HasApplied(ctx, "AWB1", ChargeForward)
	assert.NoError(t, err)
	assert.False(t, applied)

	assert.NoError(t, m.MarkApplied(ctx, "AWB1", ChargeForward, time.Minute))

	applied, err = m.HasApplied(ctx, "AWB1", ChargeForward)
	assert.NoError(t, err)
	assert.True(t, applied)

	// Charge types are independent marks.
	applied, err = m.HasApplied(ctx, "AWB1", ChargeCOD)
	assert.NoError(t, err)
	assert.False(t, applied)

	// Keys are normalized on AWB casing.
	applied, err = m.HasApplied(ctx, "awb1", ChargeForward)
	assert.NoError(t, err)
	assert.True(t, applied)
}
