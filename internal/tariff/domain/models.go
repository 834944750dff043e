package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Zone is the courier pricing zone resolved from pickup/delivery proximity.
type Zone string

const (
	ZoneA Zone = "A" // intra-city
	ZoneB Zone = "B" // intra-region
	ZoneC Zone = "C" // metro to metro
	ZoneD Zone = "D" // rest of country
	ZoneE Zone = "E" // special territories
)

// CourierTariff is a courier's pricing table. Immutable per courier; the
// rater looks prices up by zone.
type CourierTariff struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	CourierID snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`

	// COD charge is the greater of the flat amount and the percentage of
	// the collected value.
	CODFlatCharge int64   `gorm:"not null;default:0"` // paise
	CODPercent    float64 `gorm:"not null;default:0"`

	// When set, RTO legs are priced with the forward base/increment rates.
	RTOSameAsForward bool `gorm:"not null;default:false"`

	Rates []ZoneRate `gorm:"foreignKey:TariffID"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CourierTariff) TableName() string { return "courier_tariffs" }

// ZoneRate prices one zone of a tariff.
type ZoneRate struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TariffID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_zone_rates_tariff_zone,priority:1"`
	Zone     Zone         `gorm:"type:text;not null;uniqueIndex:ux_zone_rates_tariff_zone,priority:2"`

	BasePrice       int64   `gorm:"not null"` // paise, covers BaseWeight
	BaseWeight      float64 `gorm:"not null"` // kg slab covered by BasePrice
	IncrementWeight float64 `gorm:"not null"` // kg per additional slab
	IncrementPrice  int64   `gorm:"not null"` // paise per additional slab

	RTOBasePrice      int64 `gorm:"not null;default:0"`
	RTOIncrementPrice int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ZoneRate) TableName() string { return "zone_rates" }

// RateFor returns the zone entry, or nil when the tariff has no row for it.
func (t CourierTariff) RateFor(zone Zone) *ZoneRate {
	for i := range t.Rates {
		if t.Rates[i].Zone == zone {
			return &t.Rates[i]
		}
	}
	return nil
}
