package domain

import (
	tariffdomain "github.com/parcelcraft/shipledger/internal/tariff/domain"
)

// Service rates shipments against courier tariffs. Rating is pure and
// in-memory; the same logic must be used for original billing and any
// re-rating, since zone drives price.
type Service interface {
	Rate(input RateInput, tariff tariffdomain.CourierTariff) RateResult
	EstimateZone(pickupPincode, deliveryPincode string) (tariffdomain.Zone, bool)
}
