package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentNotPaid  PaymentStatus = "NOT_PAID"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentDisputed PaymentStatus = "DISPUTED"
)

// Billing is one charge applied to a shipment for a billing month. The
// (awb, billing_month) unique index is the durable exactly-once guard: a
// replayed batch inserts nothing and the ledger stays clean.
type Billing struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	AWB          string       `gorm:"type:text;not null;uniqueIndex:ux_billings_awb_month"`
	BillingMonth string       `gorm:"type:text;not null;uniqueIndex:ux_billings_awb_month"` // "2006-01"
	ShipmentID   snowflake.ID `gorm:"not null;index"`
	MerchantID   snowflake.ID `gorm:"not null;index"`
	CourierID    snowflake.ID `gorm:"not null"`
	TariffID     snowflake.ID `gorm:"not null"`

	Zone             string  `gorm:"type:text;not null"`
	ChargedWeight    float64 `gorm:"not null"` // courier-observed kg after slab rounding
	OriginalWeight   float64 `gorm:"not null"` // merchant-declared kg
	WeightDifference float64 `gorm:"not null;default:0"`

	BasePrice     int64 `gorm:"not null"` // paise
	ForwardExcess int64 `gorm:"not null;default:0"`
	RTOCharge     int64 `gorm:"not null;default:0"`
	CODCharge     int64 `gorm:"not null;default:0"`
	TotalAmount   int64 `gorm:"not null"`

	PaymentStatus PaymentStatus `gorm:"type:text;not null;default:'NOT_PAID';index"`
	WalletTxnID   *snowflake.ID

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Billing) TableName() string { return "billings" }
