package service

import (
	"testing"

	ratingdomain "github.com/parcelcraft/shipledger/internal/rating/domain"
	tariffdomain "github.com/parcelcraft/shipledger/internal/tariff/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newRater(t *testing.T) ratingdomain.Service {
	t.Helper()
	return NewService(ServiceParam{Log: zap.NewNop()})
}

func testTariff() tariffdomain.CourierTariff {
	return tariffdomain.CourierTariff{
		Name:          "surface-lite",
		CODFlatCharge: 3000, // Rs 30
		CODPercent:    1.5,
		Rates: []tariffdomain.ZoneRate{
			{
				Zone:              tariffdomain.ZoneB,
				BasePrice:         4000, // Rs 40 up to 0.5 kg
				BaseWeight:        0.5,
				IncrementWeight:   0.5,
				IncrementPrice:    2000, // Rs 20 per extra 0.5 kg
				RTOBasePrice:      3500,
				RTOIncrementPrice: 1800,
			},
			{
				Zone:            tariffdomain.ZoneD,
				BasePrice:       7000,
				BaseWeight:      0.5,
				IncrementWeight: 0.5,
				IncrementPrice:  4500,
			},
		},
	}
}

func TestEstimateZone(t *testing.T) {
	svc := newRater(t)

	cases := []struct {
		name     string
		pickup   string
		delivery string
		want     tariffdomain.Zone
	}{
		{"same city", "560001", "560045", tariffdomain.ZoneA},
		{"same circle", "560001", "530068", tariffdomain.ZoneB},
		{"metro to metro", "400001", "700001", tariffdomain.ZoneC},
		{"rest of country", "248001", "682001", tariffdomain.ZoneD},
		{"northeast delivery", "110001", "781001", tariffdomain.ZoneE},
		{"jk pickup", "190001", "400001", tariffdomain.ZoneE},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			zone, ok := svc.EstimateZone(tc.pickup, tc.delivery)
			assert.True(t, ok)
			assert.Equal(t, tc.want, zone)
		})
	}

	_, ok := svc.EstimateZone("5600", "560001")
	assert.False(t, ok, "short pincode must not resolve")
}

func TestRate_VolumetricWeightWins(t *testing.T) {
	svc := newRater(t)

	// 30x30x30 cm at divisor 5000 = 5.4 kg volumetric vs 1 kg declared.
	res := svc.Rate(ratingdomain.RateInput{
		AWB:             "AWB100",
		Weight:          1.0,
		OriginalWeight:  1.0,
		Length:          30,
		Width:           30,
		Height:          30,
		PickupPincode:   "560001",
		DeliveryPincode: "530068",
	}, testTariff())

	assert.True(t, res.Rateable)
	assert.Equal(t, tariffdomain.ZoneB, res.Zone)
	assert.Equal(t, 5.5, res.ChargeableWeight, "5.4 rounds up to the 0.5 kg slab")
	// 10 increments of 0.5 kg above the 0.5 kg base.
	assert.Equal(t, int64(4000+10*2000), res.BasePrice+res.ForwardExcess)
}

func TestRate_ExcessOverOriginalWeight(t *testing.T) {
	svc := newRater(t)

	res := svc.Rate(ratingdomain.RateInput{
		AWB:             "AWB101",
		Weight:          1.5,
		OriginalWeight:  1.0,
		PickupPincode:   "560001",
		DeliveryPincode: "530068",
	}, testTariff())

	assert.True(t, res.Rateable)
	assert.Equal(t, 1.5, res.ChargeableWeight)
	assert.Equal(t, 1.0, res.OriginalApplicableWeight)
	assert.Equal(t, int64(2000), res.ForwardExcessOverOriginal, "one 0.5 kg slab at Rs 20")
	assert.Equal(t, int64(0), res.RTOExcessOverOriginal)
}

func TestRate_CODCharge(t *testing.T) {
	svc := newRater(t)
	tariff := testTariff()

	res := svc.Rate(ratingdomain.RateInput{
		AWB:             "AWB102",
		Weight:          0.5,
		CODAmount:       500000, // Rs 5000 collected
		PickupPincode:   "560001",
		DeliveryPincode: "530068",
	}, tariff)
	assert.True(t, res.Rateable)
	// 1.5% of Rs 5000 = Rs 75 beats the Rs 30 floor.
	assert.Equal(t, int64(7500), res.CODCharge)

	small := svc.Rate(ratingdomain.RateInput{
		AWB:             "AWB103",
		Weight:          0.5,
		CODAmount:       50000, // Rs 500
		PickupPincode:   "560001",
		DeliveryPincode: "530068",
	}, tariff)
	assert.Equal(t, int64(3000), small.CODCharge, "flat floor applies")
}

func TestRate_RTOSuppressesCOD(t *testing.T) {
	svc := newRater(t)

	res := svc.Rate(ratingdomain.RateInput{
		AWB:             "AWB104",
		Weight:          1.0,
		OriginalWeight:  1.0,
		CODAmount:       500000,
		RTO:             true,
		PickupPincode:   "560001",
		DeliveryPincode: "530068",
	}, testTariff())

	assert.True(t, res.Rateable)
	assert.Equal(t, int64(0), res.CODCharge, "no COD on a returned shipment")
	// RTO base plus one 0.5 kg RTO increment above the base slab.
	assert.Equal(t, int64(3500+1800), res.RTOCharge)
}

func TestRate_MissingZoneIsUnrateable(t *testing.T) {
	svc := newRater(t)

	res := svc.Rate(ratingdomain.RateInput{
		AWB:             "AWB105",
		Weight:          1.0,
		PickupPincode:   "110001",
		DeliveryPincode: "781001", // zone E, not priced by testTariff
	}, testTariff())

	assert.False(t, res.Rateable)
	assert.Equal(t, tariffdomain.ZoneE, res.Zone)
	assert.NotEmpty(t, res.FailureReason)
}
