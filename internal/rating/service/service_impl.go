package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/parcelcraft/shipledger/internal/config"
	ratingdomain "github.com/parcelcraft/shipledger/internal/rating/domain"
	tariffdomain "github.com/parcelcraft/shipledger/internal/tariff/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const weightEpsilon = 1e-9

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	BillingCfg *config.BillingConfigHolder `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	divisor func() float64
}

func NewService(p ServiceParam) ratingdomain.Service {
	divisor := func() float64 { return config.DefaultBillingConfig().VolumetricDivisor }
	if p.BillingCfg != nil {
		holder := p.BillingCfg
		divisor = func() float64 { return holder.Get().VolumetricDivisor }
	}
	return &Service{
		log:     p.Log.Named("rating.service"),
		divisor: divisor,
	}
}

// Metro postal prefixes (first two pincode digits).
var metroPrefixes = map[string]bool{
	"11": true, // Delhi
	"40": true, // Mumbai
	"50": true, // Hyderabad
	"56": true, // Bengaluru
	"60": true, // Chennai
	"70": true, // Kolkata
}

// EstimateZone buckets pickup/delivery pincodes into a pricing zone. This
// is a pre-lookup estimate only; the tariff's zone table stays authoritative
// for the actual price.
func (s *Service) EstimateZone(pickupPincode, deliveryPincode string) (tariffdomain.Zone, bool) {
	pickup := strings.TrimSpace(pickupPincode)
	delivery := strings.TrimSpace(deliveryPincode)
	if len(pickup) != 6 || len(delivery) != 6 {
		return "", false
	}

	if isSpecialTerritory(pickup) || isSpecialTerritory(delivery) {
		return tariffdomain.ZoneE, true
	}
	if pickup[:3] == delivery[:3] {
		return tariffdomain.ZoneA, true
	}
	if pickup[0] == delivery[0] {
		return tariffdomain.ZoneB, true
	}
	if metroPrefixes[pickup[:2]] && metroPrefixes[delivery[:2]] {
		return tariffdomain.ZoneC, true
	}
	return tariffdomain.ZoneD, true
}

// Northeast (78-79) and Jammu & Kashmir (18-19) postal circles.
func isSpecialTerritory(pincode string) bool {
	switch pincode[:2] {
	case "78", "79", "18", "19":
		return true
	}
	return false
}

func (s *Service) Rate(in ratingdomain.RateInput, tariff tariffdomain.CourierTariff) ratingdomain.RateResult {
	if in.Weight <= 0 {
		return ratingdomain.Unrateable("", fmt.Sprintf("awb %s: non-positive weight", in.AWB))
	}

	zone, ok := s.EstimateZone(in.PickupPincode, in.DeliveryPincode)
	if !ok {
		return ratingdomain.Unrateable("", fmt.Sprintf("awb %s: invalid pincode pair %q/%q", in.AWB, in.PickupPincode, in.DeliveryPincode))
	}

	rate := tariff.RateFor(zone)
	if rate == nil {
		return ratingdomain.Unrateable(zone, fmt.Sprintf("tariff %s has no rate for zone %s", tariff.Name, zone))
	}
	if rate.IncrementWeight <= 0 {
		return ratingdomain.Unrateable(zone, fmt.Sprintf("tariff %s zone %s has invalid increment weight", tariff.Name, zone))
	}

	volumetric := in.Length * in.Width * in.Height / s.divisor()
	actual := math.Max(in.Weight, volumetric)
	chargeable := roundUpToSlab(actual, rate.IncrementWeight)
	if chargeable < rate.BaseWeight {
		chargeable = rate.BaseWeight
	}

	originalApplicable := rate.BaseWeight
	if in.OriginalWeight > 0 {
		if rounded := roundUpToSlab(in.OriginalWeight, rate.IncrementWeight); rounded > originalApplicable {
			originalApplicable = rounded
		}
	}

	forwardExcess := slabUnits(chargeable-rate.BaseWeight, rate.IncrementWeight) * rate.IncrementPrice
	forwardOverOriginal := slabUnits(chargeable-originalApplicable, rate.IncrementWeight) * rate.IncrementPrice

	rtoBase, rtoIncrement := rate.RTOBasePrice, rate.RTOIncrementPrice
	if tariff.RTOSameAsForward {
		rtoBase, rtoIncrement = rate.BasePrice, rate.IncrementPrice
	}

	var rtoCharge, rtoOverOriginal int64
	if in.RTO {
		rtoCharge = rtoBase + slabUnits(chargeable-rate.BaseWeight, rate.IncrementWeight)*rtoIncrement
		rtoOverOriginal = slabUnits(chargeable-originalApplicable, rate.IncrementWeight) * rtoIncrement
	}

	var codCharge int64
	if !in.RTO && in.CODAmount > 0 {
		codCharge = codChargeFor(tariff, in.CODAmount)
	}

	return ratingdomain.RateResult{
		Rateable:                 true,
		Zone:                     zone,
		ChargeableWeight:         chargeable,
		OriginalApplicableWeight: originalApplicable,
		BasePrice:                rate.BasePrice,
		ForwardExcess:            forwardExcess,
		RTOCharge:                rtoCharge,
		CODCharge:                codCharge,
		IncrementPrice:           rate.IncrementPrice,
		TotalPrice:               rate.BasePrice + forwardExcess + rtoCharge + codCharge,

		ForwardExcessOverOriginal: forwardOverOriginal,
		RTOExcessOverOriginal:     rtoOverOriginal,
	}
}

func codChargeFor(tariff tariffdomain.CourierTariff, codAmount int64) int64 {
	percent := int64(math.Floor(float64(codAmount)*tariff.CODPercent/100 + 0.5))
	if percent > tariff.CODFlatCharge {
		return percent
	}
	return tariff.CODFlatCharge
}

func roundUpToSlab(weight, increment float64) float64 {
	if weight <= 0 {
		return 0
	}
	units := math.Ceil(weight/increment - weightEpsilon)
	return units * increment
}

func slabUnits(excess, increment float64) int64 {
	if excess <= weightEpsilon {
		return 0
	}
	return int64(math.Ceil(excess/increment - weightEpsilon))
}
