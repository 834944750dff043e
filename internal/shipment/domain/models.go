package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ShipmentStatus tracks delivery progress. Billing eligibility and COD
// handling both key off these values.
type ShipmentStatus string

const (
	StatusNew             ShipmentStatus = "NEW"
	StatusPickupPending   ShipmentStatus = "PICKUP_PENDING"
	StatusPickupScheduled ShipmentStatus = "PICKUP_SCHEDULED"
	StatusInTransit       ShipmentStatus = "IN_TRANSIT"
	StatusOutForDelivery  ShipmentStatus = "OUT_FOR_DELIVERY"
	StatusDelivered       ShipmentStatus = "DELIVERED"
	StatusCancelled       ShipmentStatus = "CANCELLED"
	StatusRTOInitiated    ShipmentStatus = "RTO_INITIATED"
	StatusRTOInTransit    ShipmentStatus = "RTO_IN_TRANSIT"
	StatusRTODelivered    ShipmentStatus = "RTO_DELIVERED"
	StatusLost            ShipmentStatus = "LOST"
)

// IsRTO reports whether the shipment is on a return-to-origin leg.
// COD is never collected on these, and RTO pricing applies.
func (s ShipmentStatus) IsRTO() bool {
	switch s {
	case StatusRTOInitiated, StatusRTOInTransit, StatusRTODelivered:
		return true
	}
	return false
}

// IsBillable reports whether the shipment represents a chargeable event.
// New, cancelled and not-yet-picked-up shipments are excluded from cycles.
func (s ShipmentStatus) IsBillable() bool {
	switch s {
	case StatusNew, StatusPickupPending, StatusCancelled:
		return false
	}
	return true
}

// Shipment is created at label generation; the billing engine reads it and
// only ever mutates Status.
type Shipment struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	MerchantID snowflake.ID `gorm:"not null;index"`
	AWB        string       `gorm:"type:text;not null;uniqueIndex:ux_shipments_awb"`
	OrderRef   string       `gorm:"type:text;not null;index"`

	CourierID snowflake.ID `gorm:"not null;index"`
	TariffID  snowflake.ID `gorm:"not null"`

	DeclaredWeight float64 `gorm:"not null"` // kg
	Length         float64 `gorm:"not null"` // cm
	Width          float64 `gorm:"not null"`
	Height         float64 `gorm:"not null"`

	PickupPincode   string `gorm:"type:text;not null"`
	DeliveryPincode string `gorm:"type:text;not null"`

	COD       bool  `gorm:"not null;default:false"`
	CODAmount int64 `gorm:"not null;default:0"` // paise

	Status ShipmentStatus `gorm:"type:text;not null;default:'NEW';index"`
	Zone   string         `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Shipment) TableName() string { return "shipments" }
