package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RunReport summarizes one scheduler pass over due cycles.
type RunReport struct {
	Due       int
	Completed int
	Failed    int
}

// Service drives the billing-cycle lifecycle. FAILED cycles stay due, so
// the next scheduler pass retries them without manual intervention.
type Service interface {
	// Bootstrap opens the first cycle for a merchant.
	Bootstrap(ctx context.Context, merchantID snowflake.ID, start time.Time, cycleDays int) (*BillingCycle, error)
	Get(ctx context.Context, id snowflake.ID) (*BillingCycle, error)
	// RunDueCycles processes every cycle whose NextCycleDate has passed,
	// bills the shipments of the window and seeds the successor cycle.
	RunDueCycles(ctx context.Context, now time.Time) (RunReport, error)
}
