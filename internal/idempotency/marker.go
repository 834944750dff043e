package idempotency

import (
	"context"
	"strings"
	"time"
)

// ChargeType identifies a charge applied to a shipment exactly once.
type ChargeType string

const (
	ChargeForward ChargeType = "forward"
	ChargeRTO     ChargeType = "rto"
	ChargeCOD     ChargeType = "cod"
)

// Marker remembers that a charge of a given type was already applied to an
// AWB. It is best-effort shared state: losing it only forces the durable
// uniqueness check at write time, trusting it alone is never safe.
type Marker interface {
	HasApplied(ctx context.Context, awb string, charge ChargeType) (bool, error)
	MarkApplied(ctx context.Context, awb string, charge ChargeType, ttl time.Duration) error
}

func markerKey(awb string, charge ChargeType) string {
	return "charge:" + strings.ToUpper(strings.TrimSpace(awb)) + ":" + string(charge)
}
