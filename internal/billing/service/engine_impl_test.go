package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	bulkopdomain "github.com/parcelcraft/shipledger/internal/bulkop/domain"
	bulkopservice "github.com/parcelcraft/shipledger/internal/bulkop/service"
	"github.com/parcelcraft/shipledger/internal/clock"
	disputedomain "github.com/parcelcraft/shipledger/internal/dispute/domain"
	"github.com/parcelcraft/shipledger/internal/idempotency"
	ratingdomain "github.com/parcelcraft/shipledger/internal/rating/domain"
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

var engineDBSeq int

type engineFixture struct {
	db      *gorm.DB
	engine  billingdomain.Engine
	wallet  walletdomain.Service
	bulkOps bulkopdomain.Service
	rater   ratingdomain.Service
	clock   *clock.FakeClock
	genID   *snowflake.Node
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	engineDBSeq++
	dsn := fmt.Sprintf("file:engine%d?mode=memory&cache=shared", engineDBSeq)
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
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	wallet := walletservice.NewService(walletservice.ServiceParam{DB: db, Log: log, GenID: node})
	bulkOps := bulkopservice.NewService(bulkopservice.ServiceParam{DB: db, Log: log, GenID: node})
	rater := ratingservice.NewService(ratingservice.ServiceParam{Log: log})

	engine := NewEngine(EngineParam{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Rater:   rater,
		Wallet:  wallet,
		BulkOps: bulkOps,
	})

	return &engineFixture{db: db, engine: engine, wallet: wallet, bulkOps: bulkOps, rater: rater, clock: fake, genID: node}
}

func (f *engineFixture) seedTariff(t *testing.T) *tariffdomain.CourierTariff {
	t.Helper()
	tariff := tariffdomain.CourierTariff{
		ID:            f.genID.Generate(),
		CourierID:     f.genID.Generate(),
		Name:          "surface-lite",
		CODFlatCharge: 2500,
		CODPercent:    1.5,
		Rates: []tariffdomain.ZoneRate{
			{
				ID: f.genID.Generate(), Zone: tariffdomain.ZoneB,
				BasePrice: 4000, BaseWeight: 0.5,
				IncrementWeight: 0.5, IncrementPrice: 2000,
				RTOBasePrice: 3500, RTOIncrementPrice: 1800,
			},
			{
				ID: f.genID.Generate(), Zone: tariffdomain.ZoneD,
				BasePrice: 6000, BaseWeight: 0.5,
				IncrementWeight: 0.5, IncrementPrice: 3000,
				RTOBasePrice: 5000, RTOIncrementPrice: 2500,
			},
		},
	}
	require.NoError(t, f.db.Create(&tariff).Error)
	return &tariff
}

func (f *engineFixture) seedMerchant(t *testing.T, balance int64) (snowflake.ID, *walletdomain.Wallet) {
	t.Helper()
	merchantID := f.genID.Generate()
	wallet, err := f.wallet.Create(context.Background(), merchantID, 0)
	require.NoError(t, err)
	if balance > 0 {
		_, err = f.wallet.Apply(context.Background(), walletdomain.ApplyRequest{
			WalletID: wallet.ID, Amount: balance,
			Type: walletdomain.TransactionCredit, SourceType: walletdomain.SourceRecharge, SourceRef: "seed",
		})
		require.NoError(t, err)
	}
	return merchantID, wallet
}

func (f *engineFixture) seedShipment(t *testing.T, merchantID snowflake.ID, tariff *tariffdomain.CourierTariff, awb string, declaredKg float64, status shipmentdomain.ShipmentStatus) *shipmentdomain.Shipment {
	t.Helper()
	s := shipmentdomain.Shipment{
		ID:         f.genID.Generate(),
		MerchantID: merchantID,
		AWB:        awb,
		OrderRef:   "ord-" + awb,
		CourierID:  tariff.CourierID,
		TariffID:   tariff.ID,

		DeclaredWeight: declaredKg,
		Length:         10, Width: 10, Height: 10,

		// Same first digit, different district: zone B.
		PickupPincode:   "110001",
		DeliveryPincode: "122001",

		Status:    status,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&s).Error)
	return &s
}

func TestProcessRow_BillsAndDebitsWallet(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tariff := f.seedTariff(t)
	merchantID, wallet := f.seedMerchant(t, 100000)
	f.seedShipment(t, merchantID, tariff, "AWB1001", 1.0, shipmentdomain.StatusDelivered)

	res, err := f.engine.ProcessRow(ctx, billingdomain.Row{AWB: "AWB1001", Weight: 1.0}, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, billingdomain.OutcomeBilled, res.Outcome)

	// 1.0kg in 0.5kg slabs: base 4000 + one increment 2000.
	require.NotNil(t, res.Billing)
	assert.Equal(t, int64(6000), res.Billing.TotalAmount)
	assert.Equal(t, billingdomain.PaymentPaid, res.Billing.PaymentStatus)
	assert.Equal(t, "2024-01", res.Billing.BillingMonth)
	assert.Equal(t, "B", res.Billing.Zone)

	reloaded, err := f.wallet.Get(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(94000), reloaded.Balance)

	var disputes int64
	require.NoError(t, f.db.Model(&disputedomain.WeightDispute{}).Count(&disputes).Error)
	assert.Equal(t, int64(0), disputes, "matching weights must not raise a dispute")
}

func TestProcessRow_RerunIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tariff := f.seedTariff(t)
	merchantID, wallet := f.seedMerchant(t, 100000)
	f.seedShipment(t, merchantID, tariff, "AWB1002", 0.5, shipmentdomain.StatusDelivered)

	row := billingdomain.Row{AWB: "AWB1002", Weight: 0.5}
	first, err := f.engine.ProcessRow(ctx, row, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeBilled, first.Outcome)

	second, err := f.engine.ProcessRow(ctx, row, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeSkipped, second.Outcome)

	var billings int64
	require.NoError(t, f.db.Model(&billingdomain.Billing{}).Where("awb = ?", "AWB1002").Count(&billings).Error)
	assert.Equal(t, int64(1), billings)

	reloaded, err := f.wallet.Get(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(96000), reloaded.Balance, "wallet debited exactly once")
}

func TestProcessRow_ObservedWeightRaisesDispute(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tariff := f.seedTariff(t)
	merchantID, _ := f.seedMerchant(t, 100000)
	f.seedShipment(t, merchantID, tariff, "AWB1003", 1.0, shipmentdomain.StatusDelivered)

	// Courier observed 1.5kg against a 1.0kg declaration: the extra slab
	// (Rs 20) is the contested amount.
	res, err := f.engine.ProcessRow(ctx, billingdomain.Row{AWB: "AWB1003", Weight: 1.5}, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, billingdomain.OutcomeBilled, res.Outcome)
	assert.Equal(t, billingdomain.PaymentDisputed, res.Billing.PaymentStatus)
	assert.Equal(t, int64(8000), res.Billing.TotalAmount)

	var dispute disputedomain.WeightDispute
	require.NoError(t, f.db.Where("awb = ?", "AWB1003").First(&dispute).Error)
	assert.Equal(t, disputedomain.StatusPending, dispute.Status)
	assert.Equal(t, int64(2000), dispute.ForwardExcessAmount)
	assert.Equal(t, int64(0), dispute.RTOExcessAmount)
	assert.Equal(t, 1.0, dispute.OriginalWeight)
	assert.Equal(t, 1.5, dispute.DisputedWeight)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), dispute.Deadline)
}

func TestProcessRow_RTOShipmentSkipsCOD(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tariff := f.seedTariff(t)
	merchantID, _ := f.seedMerchant(t, 100000)
	s := f.seedShipment(t, merchantID, tariff, "AWB1004", 0.5, shipmentdomain.StatusRTODelivered)
	require.NoError(t, f.db.Model(s).Updates(map[string]any{"cod": true, "cod_amount": 150000}).Error)

	res, err := f.engine.ProcessRow(ctx, billingdomain.Row{AWB: "AWB1004", Weight: 0.5}, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, billingdomain.OutcomeBilled, res.Outcome)
	assert.Equal(t, int64(0), res.Billing.CODCharge)
	assert.Equal(t, int64(3500), res.Billing.RTOCharge)
	assert.Equal(t, int64(7500), res.Billing.TotalAmount) // forward base + rto base
}

func TestProcessRow_InsufficientFundsLeavesNotPaid(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tariff := f.seedTariff(t)
	merchantID, wallet := f.seedMerchant(t, 0)
	f.seedShipment(t, merchantID, tariff, "AWB1005", 0.5, shipmentdomain.StatusDelivered)

	res, err := f.engine.ProcessRow(ctx, billingdomain.Row{AWB: "AWB1005", Weight: 0.5}, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeBilled, res.Outcome, "an unpaid charge is still a recorded charge")
	assert.Equal(t, billingdomain.PaymentNotPaid, res.Billing.PaymentStatus)

	reloaded, err := f.wallet.Get(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.Balance)

	// Top up, then retry: the charge clears with the original dedupe key.
	_, err = f.wallet.Apply(ctx, walletdomain.ApplyRequest{
		WalletID: wallet.ID, Amount: 10000,
		Type: walletdomain.TransactionCredit, SourceType: walletdomain.SourceRecharge, SourceRef: "topup",
	})
	require.NoError(t, err)

	paid, err := f.engine.RetryUnpaid(ctx, merchantID, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)

	var billing billingdomain.Billing
	require.NoError(t, f.db.Where("awb = ?", "AWB1005").First(&billing).Error)
	assert.Equal(t, billingdomain.PaymentPaid, billing.PaymentStatus)
	require.NotNil(t, billing.WalletTxnID)

	reloaded, err = f.wallet.Get(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), reloaded.Balance)
}

func TestProcessRow_MarksAppliedChargeTypes(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tariff := f.seedTariff(t)
	merchantID, _ := f.seedMerchant(t, 100000)

	marker := idempotency.NewMemoryMarker()
	engine := NewEngine(EngineParam{
		DB:      f.db,
		Log:     zap.NewNop(),
		GenID:   f.genID,
		Clock:   f.clock,
		Rater:   f.rater,
		Wallet:  f.wallet,
		BulkOps: f.bulkOps,
		Marker:  marker,
	})

	cod := f.seedShipment(t, merchantID, tariff, "AWB3001", 0.5, shipmentdomain.StatusDelivered)
	require.NoError(t, f.db.Model(cod).Updates(map[string]any{"cod": true, "cod_amount": 150000}).Error)
	f.seedShipment(t, merchantID, tariff, "AWB3002", 0.5, shipmentdomain.StatusRTODelivered)

	res, err := engine.ProcessRow(ctx, billingdomain.Row{AWB: "AWB3001", Weight: 0.5}, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, billingdomain.OutcomeBilled, res.Outcome)

	for charge, want := range map[idempotency.ChargeType]bool{
		idempotency.ChargeForward: true,
		idempotency.ChargeCOD:     true,
		idempotency.ChargeRTO:     false,
	} {
		applied, err := marker.HasApplied(ctx, "AWB3001", charge)
		require.NoError(t, err)
		assert.Equal(t, want, applied, "charge %s", charge)
	}

	res, err = engine.ProcessRow(ctx, billingdomain.Row{AWB: "AWB3002", Weight: 0.5}, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, billingdomain.OutcomeBilled, res.Outcome)

	rto, err := marker.HasApplied(ctx, "AWB3002", idempotency.ChargeRTO)
	require.NoError(t, err)
	assert.True(t, rto)
	codMark, err := marker.HasApplied(ctx, "AWB3002", idempotency.ChargeCOD)
	require.NoError(t, err)
	assert.False(t, codMark, "no COD charge on a returned shipment")

	// The forward mark is the fast-path skip on a rerun.
	second, err := engine.ProcessRow(ctx, billingdomain.Row{AWB: "AWB3001", Weight: 0.5}, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeSkipped, second.Outcome)
}

func TestProcessBatch_CountsMissingRows(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tariff := f.seedTariff(t)
	merchantID, _ := f.seedMerchant(t, 10000000)

	rows := make([]billingdomain.Row, 0, 10)
	for i := 0; i < 7; i++ {
		awb := fmt.Sprintf("AWB2%03d", i)
		f.seedShipment(t, merchantID, tariff, awb, 0.5, shipmentdomain.StatusDelivered)
		rows = append(rows, billingdomain.Row{AWB: awb, Weight: 0.5})
	}
	for i := 0; i < 3; i++ {
		rows = append(rows, billingdomain.Row{AWB: fmt.Sprintf("GHOST%d", i), Weight: 0.5})
	}

	op, err := f.bulkOps.Create(ctx, bulkopdomain.KindBillingBatch, len(rows), nil)
	require.NoError(t, err)

	result, err := f.engine.ProcessBatch(ctx, op.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Processed)
	assert.Equal(t, 7, result.Success)
	assert.Equal(t, 3, result.Failed)

	reloaded, err := f.bulkOps.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, bulkopdomain.StatusCompletedWithErrors, reloaded.Status)
	assert.Equal(t, 10, reloaded.Processed)
	assert.Equal(t, 7, reloaded.Success)
	assert.Equal(t, 3, reloaded.Failed)
}
