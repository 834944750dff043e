package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// BillingCycle is one half-open billing window [CycleStartDate,
// CycleEndDate) for a merchant. Completing a cycle seeds its successor
// starting exactly where this one ends, so windows tile with no gap and
// no overlap.
type BillingCycle struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	MerchantID snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_cycles_merchant_start"`

	CycleStartDate time.Time `gorm:"not null;uniqueIndex:ux_billing_cycles_merchant_start"`
	CycleEndDate   time.Time `gorm:"not null"`
	CycleDays      int       `gorm:"not null"`
	// NextCycleDate is when the cycle becomes due for processing.
	NextCycleDate time.Time `gorm:"not null;index"`

	Status Status `gorm:"type:text;not null;default:'PENDING';index"`

	ShipmentCount int   `gorm:"not null;default:0"`
	SuccessCount  int   `gorm:"not null;default:0"`
	FailedCount   int   `gorm:"not null;default:0"`
	TotalAmount   int64 `gorm:"not null;default:0"` // paise

	ProcessedAt  *time.Time
	ErrorMessage string `gorm:"size:1024"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BillingCycle) TableName() string { return "billing_cycles" }

// Successor builds the next window. The new cycle starts at this cycle's
// end and keeps the cadence.
func (c *BillingCycle) Successor(id snowflake.ID, now time.Time) BillingCycle {
	start := c.CycleEndDate
	end := start.AddDate(0, 0, c.CycleDays)
	return BillingCycle{
		ID:             id,
		MerchantID:     c.MerchantID,
		CycleStartDate: start,
		CycleEndDate:   end,
		CycleDays:      c.CycleDays,
		NextCycleDate:  end,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
