package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	billingservice "github.com/parcelcraft/shipledger/internal/billing/service"
	cycledomain "github.com/parcelcraft/shipledger/internal/billingcycle/domain"
	bulkopdomain "github.com/parcelcraft/shipledger/internal/bulkop/domain"
	bulkopservice "github.com/parcelcraft/shipledger/internal/bulkop/service"
	"github.com/parcelcraft/shipledger/internal/clock"
	disputedomain "github.com/parcelcraft/shipledger/internal/dispute/domain"
	ratingservice "github.com/parcelcraft/shipledger/internal/rating/service"
	shipmentdomain "github.com/parcelcraft/shipledger/internal/shipment/domain"
	tariffdomain "github.com/parcelcraft/shipledger/internal/tariff/domain"
	walletdomain "github.com/parcelcraft/shipledger/internal/wallet/domain"
	walletservice "github.com/parcelcraft/shipledger/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var cycleDBSeq int

type cycleFixture struct {
	db     *gorm.DB
	cycles cycledomain.Service
	wallet walletdomain.Service
	genID  *snowflake.Node
	tariff *tariffdomain.CourierTariff
}

func newCycleFixture(t *testing.T) *cycleFixture {
	t.Helper()

	cycleDBSeq++
	dsn := fmt.Sprintf("file:cycle%d?mode=memory&cache=shared", cycleDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&shipmentdomain.Shipment{},
		&tariffdomain.CourierTariff{},
		&tariffdomain.ZoneRate{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&billingdomain.Billing{},
		&disputedomain.WeightDispute{},
		&bulkopdomain.BulkOperation{},
		&cycledomain.BillingCycle{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	wallet := walletservice.NewService(walletservice.ServiceParam{DB: db, Log: log, GenID: node})
	bulkOps := bulkopservice.NewService(bulkopservice.ServiceParam{DB: db, Log: log, GenID: node})
	rater := ratingservice.NewService(ratingservice.ServiceParam{Log: log})
	engine := billingservice.NewEngine(billingservice.EngineParam{
		DB: db, Log: log, GenID: node, Clock: fake,
		Rater: rater, Wallet: wallet, BulkOps: bulkOps,
	})
	cycles := NewService(ServiceParam{DB: db, Log: log, GenID: node, Engine: engine, BulkOps: bulkOps})

	tariff := tariffdomain.CourierTariff{
		ID:        node.Generate(),
		CourierID: node.Generate(),
		Name:      "surface-lite",
		Rates: []tariffdomain.ZoneRate{{
			ID: node.Generate(), Zone: tariffdomain.ZoneB,
			BasePrice: 4000, BaseWeight: 0.5,
			IncrementWeight: 0.5, IncrementPrice: 2000,
		}},
	}
	require.NoError(t, db.Create(&tariff).Error)

	return &cycleFixture{db: db, cycles: cycles, wallet: wallet, genID: node, tariff: &tariff}
}

func (f *cycleFixture) seedMerchant(t *testing.T, balance int64) snowflake.ID {
	t.Helper()
	merchantID := f.genID.Generate()
	wallet, err := f.wallet.Create(context.Background(), merchantID, 0)
	require.NoError(t, err)
	_, err = f.wallet.Apply(context.Background(), walletdomain.ApplyRequest{
		WalletID: wallet.ID, Amount: balance,
		Type: walletdomain.TransactionCredit, SourceType: walletdomain.SourceRecharge, SourceRef: "seed",
	})
	require.NoError(t, err)
	return merchantID
}

func (f *cycleFixture) seedShipment(t *testing.T, merchantID snowflake.ID, awb string, createdAt time.Time, status shipmentdomain.ShipmentStatus) {
	t.Helper()
	s := shipmentdomain.Shipment{
		ID:             f.genID.Generate(),
		MerchantID:     merchantID,
		AWB:            awb,
		OrderRef:       "ord-" + awb,
		CourierID:      f.tariff.CourierID,
		TariffID:       f.tariff.ID,
		DeclaredWeight: 0.5,
		Length:         10, Width: 10, Height: 10,
		PickupPincode:   "110001",
		DeliveryPincode: "122001",
		Status:          status,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	require.NoError(t, f.db.Create(&s).Error)
}

func TestRunDueCycles_BillsWindowAndSeedsSuccessor(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t)
	merchantID := f.seedMerchant(t, 1000000)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cycle, err := f.cycles.Bootstrap(ctx, merchantID, start, 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), cycle.CycleEndDate)

	inWindow := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	f.seedShipment(t, merchantID, "CYC001", inWindow, shipmentdomain.StatusDelivered)
	f.seedShipment(t, merchantID, "CYC002", inWindow, shipmentdomain.StatusInTransit)
	f.seedShipment(t, merchantID, "CYC003", inWindow, shipmentdomain.StatusCancelled)
	// Outside the window: belongs to the successor.
	f.seedShipment(t, merchantID, "CYC004", time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), shipmentdomain.StatusDelivered)

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	report, err := f.cycles.RunDueCycles(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Completed)

	done, err := f.cycles.Get(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, cycledomain.StatusCompleted, done.Status)
	assert.Equal(t, 2, done.ShipmentCount, "cancelled shipments are not billable")
	assert.Equal(t, 2, done.SuccessCount)
	assert.Equal(t, int64(8000), done.TotalAmount)

	var successor cycledomain.BillingCycle
	require.NoError(t, f.db.Where("merchant_id = ? AND status = ?", merchantID, cycledomain.StatusPending).First(&successor).Error)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), successor.CycleStartDate.UTC())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), successor.CycleEndDate.UTC())
	assert.Equal(t, 30, successor.CycleDays)
}

func TestRunDueCycles_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t)
	merchantID := f.seedMerchant(t, 1000000)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.cycles.Bootstrap(ctx, merchantID, start, 30)
	require.NoError(t, err)
	f.seedShipment(t, merchantID, "CYC101", start.AddDate(0, 0, 5), shipmentdomain.StatusDelivered)

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.cycles.RunDueCycles(ctx, now)
	require.NoError(t, err)

	report, err := f.cycles.RunDueCycles(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due, "completed cycle must not run twice; successor is not yet due")

	var cycles int64
	require.NoError(t, f.db.Model(&cycledomain.BillingCycle{}).Where("merchant_id = ?", merchantID).Count(&cycles).Error)
	assert.Equal(t, int64(2), cycles)

	var billings int64
	require.NoError(t, f.db.Model(&billingdomain.Billing{}).Where("awb = ?", "CYC101").Count(&billings).Error)
	assert.Equal(t, int64(1), billings)
}

func TestRunDueCycles_FailedCycleStaysDue(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t)
	merchantID := f.seedMerchant(t, 1000000)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cycle, err := f.cycles.Bootstrap(ctx, merchantID, start, 30)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&cycledomain.BillingCycle{}).
		Where("id = ?", cycle.ID).
		Updates(map[string]any{"status": cycledomain.StatusFailed, "error_message": "worker crashed"}).Error)

	report, err := f.cycles.RunDueCycles(ctx, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Completed)

	done, err := f.cycles.Get(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, cycledomain.StatusCompleted, done.Status)
	assert.Empty(t, done.ErrorMessage)
}
