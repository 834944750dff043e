package domain

import (
	tariffdomain "github.com/parcelcraft/shipledger/internal/tariff/domain"
)

// RateInput carries everything the rater needs for one shipment. Weight is
// the weight being billed (courier-observed during billing runs); dims are
// the declared package dimensions.
type RateInput struct {
	AWB             string
	Weight          float64 // kg
	OriginalWeight  float64 // merchant-declared kg, drives dispute amounts
	Length          float64 // cm
	Width           float64
	Height          float64
	PickupPincode   string
	DeliveryPincode string
	CODAmount       int64 // paise; zero for prepaid
	RTO             bool
}

// RateResult is the full charge breakdown. A missing zone entry yields
// Rateable=false with a reason instead of an error; callers skip and report.
type RateResult struct {
	Rateable      bool
	FailureReason string

	Zone                     tariffdomain.Zone
	ChargeableWeight         float64
	OriginalApplicableWeight float64

	BasePrice      int64 // paise
	ForwardExcess  int64 // over the tariff base slab
	RTOCharge      int64
	CODCharge      int64
	TotalPrice     int64
	IncrementPrice int64

	// Excess over the merchant-declared applicable weight; these fund
	// weight disputes when the observed weight exceeds the declaration.
	ForwardExcessOverOriginal int64
	RTOExcessOverOriginal     int64
}

// Unrateable builds a skip-and-report result.
func Unrateable(zone tariffdomain.Zone, reason string) RateResult {
	return RateResult{Rateable: false, FailureReason: reason, Zone: zone}
}
