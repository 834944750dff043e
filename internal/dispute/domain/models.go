package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusResolved Status = "RESOLVED"
)

// Terminal reports whether the dispute can no longer transition.
func (s Status) Terminal() bool { return s != StatusPending }

// Actor identifies who performs a dispute transition. Rejection is an
// admin-only action; acceptance is open to both sides.
type Actor string

const (
	ActorMerchant Actor = "merchant"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

// WeightDispute is raised when the courier-observed weight of a billed
// shipment exceeds the merchant declaration. Only the excess portion of the
// charge is contested; the declared portion is never in dispute.
type WeightDispute struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	BillingID  snowflake.ID `gorm:"not null;uniqueIndex:ux_weight_disputes_billing"`
	AWB        string       `gorm:"type:text;not null;index"`
	MerchantID snowflake.ID `gorm:"not null;index"`

	OriginalWeight float64 `gorm:"not null"` // merchant-declared kg
	DisputedWeight float64 `gorm:"not null"` // courier-observed chargeable kg

	ForwardExcessAmount int64 `gorm:"not null;default:0"` // paise
	RTOExcessAmount     int64 `gorm:"not null;default:0"`

	Status         Status `gorm:"type:text;not null;default:'PENDING';index"`
	ResolutionNote string `gorm:"type:text"`
	ResolvedBy     Actor  `gorm:"type:text"`

	// FinalWeight and RevisedCharge are set on acceptance, when the
	// merchant declaration wins and the excess is refunded.
	FinalWeight   *float64
	RevisedCharge *int64

	RaisedAt   time.Time `gorm:"not null"`
	Deadline   time.Time `gorm:"not null;index"`
	ResolvedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WeightDispute) TableName() string { return "weight_disputes" }

// ExcessAmount is the total contested charge.
func (d *WeightDispute) ExcessAmount() int64 {
	return d.ForwardExcessAmount + d.RTOExcessAmount
}
