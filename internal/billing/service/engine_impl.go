package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	bulkopdomain "github.com/parcelcraft/shipledger/internal/bulkop/domain"
	"github.com/parcelcraft/shipledger/internal/clock"
	"github.com/parcelcraft/shipledger/internal/config"
	disputedomain "github.com/parcelcraft/shipledger/internal/dispute/domain"
	"github.com/parcelcraft/shipledger/internal/idempotency"
	obsmetrics "github.com/parcelcraft/shipledger/internal/observability/metrics"
	ratingdomain "github.com/parcelcraft/shipledger/internal/rating/domain"
	shipmentdomain "github.com/parcelcraft/shipledger/internal/shipment/domain"
	tariffdomain "github.com/parcelcraft/shipledger/internal/tariff/domain"
	walletdomain "github.com/parcelcraft/shipledger/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EngineParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Rater   ratingdomain.Service
	Wallet  walletdomain.Service
	BulkOps bulkopdomain.Service

	Marker     idempotency.Marker          `optional:"true"`
	BillingCfg *config.BillingConfigHolder `optional:"true"`
	Metrics    *obsmetrics.Metrics         `optional:"true"`
}

type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	rater   ratingdomain.Service
	wallet  walletdomain.Service
	bulkOps bulkopdomain.Service
	marker  idempotency.Marker
	cfg     func() config.BillingConfig
	metrics *obsmetrics.Metrics
}

func NewEngine(p EngineParam) billingdomain.Engine {
	cfg := func() config.BillingConfig { return config.DefaultBillingConfig() }
	if p.BillingCfg != nil {
		holder := p.BillingCfg
		cfg = func() config.BillingConfig { return holder.Get() }
	}
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("billing.engine"),
		genID:   p.GenID,
		clock:   p.Clock,
		rater:   p.Rater,
		wallet:  p.Wallet,
		bulkOps: p.BulkOps,
		marker:  p.Marker,
		cfg:     cfg,
		metrics: p.Metrics,
	}
}

func (e *Engine) ProcessBatch(ctx context.Context, bulkOpID snowflake.ID, rows []billingdomain.Row) (billingdomain.BatchResult, error) {
	var result billingdomain.BatchResult

	tracked := bulkOpID != 0
	if tracked {
		if err := e.bulkOps.Start(ctx, bulkOpID); err != nil {
			return result, err
		}
	}

	now := e.clock.Now()
	chunkSize := e.cfg().ChunkSize

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		chunkResult, err := e.processChunk(ctx, chunk, now)
		if err != nil {
			// Infrastructure failure: stop, record, let the queue retry.
			if tracked {
				if failErr := e.bulkOps.Fail(ctx, bulkOpID, err.Error()); failErr != nil {
					e.log.Error("failed to mark bulk operation failed", zap.Error(failErr))
				}
			}
			return result, err
		}

		result.Processed += chunkResult.Processed
		result.Success += chunkResult.Success
		result.Failed += chunkResult.Failed

		if tracked {
			if err := e.bulkOps.AddProgress(ctx, bulkOpID, chunkResult.Processed, chunkResult.Success, chunkResult.Failed); err != nil {
				e.log.Error("failed to persist batch progress", zap.Error(err))
			}
		}
	}

	if tracked {
		if err := e.bulkOps.Finish(ctx, bulkOpID); err != nil {
			return result, err
		}
	}
	e.log.Info("billing batch done",
		zap.Int("processed", result.Processed),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (e *Engine) processChunk(ctx context.Context, chunk []billingdomain.Row, now time.Time) (billingdomain.BatchResult, error) {
	var result billingdomain.BatchResult

	awbs := make([]string, 0, len(chunk))
	for _, row := range chunk {
		awbs = append(awbs, row.AWB)
	}

	shipments, err := e.loadShipments(ctx, awbs)
	if err != nil {
		return result, err
	}
	tariffs, err := e.loadTariffs(ctx, shipments)
	if err != nil {
		return result, err
	}

	for _, row := range chunk {
		result.Processed++

		shipment, ok := shipments[row.AWB]
		if !ok {
			result.Failed++
			e.metrics.IncBillingRow(string(billingdomain.OutcomeFailed))
			e.log.Warn("billing row references unknown awb", zap.String("awb", row.AWB))
			continue
		}

		rowResult, err := e.processLoaded(ctx, row, shipment, tariffs[shipment.TariffID], now)
		if err != nil {
			result.Failed++
			e.metrics.IncBillingRow(string(billingdomain.OutcomeFailed))
			e.log.Warn("billing row failed", zap.String("awb", row.AWB), zap.Error(err))
			continue
		}
		switch rowResult.Outcome {
		case billingdomain.OutcomeFailed:
			result.Failed++
		default:
			result.Success++
		}
		e.metrics.IncBillingRow(string(rowResult.Outcome))
	}
	return result, nil
}

func (e *Engine) ProcessRow(ctx context.Context, row billingdomain.Row, now time.Time) (billingdomain.RowResult, error) {
	shipments, err := e.loadShipments(ctx, []string{row.AWB})
	if err != nil {
		return billingdomain.RowResult{}, err
	}
	shipment, ok := shipments[row.AWB]
	if !ok {
		return billingdomain.RowResult{
			AWB: row.AWB, Outcome: billingdomain.OutcomeFailed, Reason: "unknown awb",
		}, nil
	}
	tariffs, err := e.loadTariffs(ctx, shipments)
	if err != nil {
		return billingdomain.RowResult{}, err
	}
	return e.processLoaded(ctx, row, shipment, tariffs[shipment.TariffID], now)
}

// processLoaded is the single billing path. The redis marker is a fast-path
// skip; the (awb, billing_month) unique index is the guard that actually
// holds under replays and races.
func (e *Engine) processLoaded(ctx context.Context, row billingdomain.Row, shipment *shipmentdomain.Shipment, tariff *tariffdomain.CourierTariff, now time.Time) (billingdomain.RowResult, error) {
	failed := func(reason string) (billingdomain.RowResult, error) {
		return billingdomain.RowResult{AWB: row.AWB, Outcome: billingdomain.OutcomeFailed, Reason: reason}, nil
	}

	if !shipment.Status.IsBillable() {
		return failed(fmt.Sprintf("shipment status %s is not billable", shipment.Status))
	}
	if tariff == nil {
		return failed("tariff not found")
	}

	if e.marker != nil {
		applied, err := e.marker.HasApplied(ctx, row.AWB, idempotency.ChargeForward)
		if err != nil {
			e.log.Warn("idempotency marker unavailable", zap.Error(err))
		} else if applied {
			return billingdomain.RowResult{AWB: row.AWB, Outcome: billingdomain.OutcomeSkipped, Reason: "already billed"}, nil
		}
	}

	rated := e.rater.Rate(ratingdomain.RateInput{
		AWB:             row.AWB,
		Weight:          row.Weight,
		OriginalWeight:  shipment.DeclaredWeight,
		Length:          shipment.Length,
		Width:           shipment.Width,
		Height:          shipment.Height,
		PickupPincode:   shipment.PickupPincode,
		DeliveryPincode: shipment.DeliveryPincode,
		CODAmount:       e.codAmount(shipment),
		RTO:             shipment.Status.IsRTO(),
	}, *tariff)
	if !rated.Rateable {
		return failed(rated.FailureReason)
	}

	wallet, err := e.wallet.GetByMerchant(ctx, shipment.MerchantID)
	if err != nil {
		return billingdomain.RowResult{}, err
	}
	if wallet == nil {
		return failed("merchant has no wallet")
	}

	month := billingdomain.MonthOf(now)
	record := e.buildBilling(shipment, rated, row.Weight, month, now)

	var outcome billingdomain.Outcome
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "awb"}, {Name: "billing_month"}},
			DoNothing: true,
		}).Create(record)
		if inserted.Error != nil {
			return inserted.Error
		}
		if inserted.RowsAffected == 0 {
			outcome = billingdomain.OutcomeSkipped
			return nil
		}

		disputed := rated.ForwardExcessOverOriginal+rated.RTOExcessOverOriginal > 0
		if disputed {
			if err := e.raiseDispute(ctx, tx, record, rated, now); err != nil {
				return err
			}
		}

		status := billingdomain.PaymentNotPaid
		var walletTxnID *snowflake.ID
		applyRes, err := e.wallet.ApplyTx(ctx, tx, walletdomain.ApplyRequest{
			WalletID:   wallet.ID,
			Amount:     record.TotalAmount,
			Type:       walletdomain.TransactionDebit,
			SourceType: walletdomain.SourceShipment,
			SourceRef:  row.AWB,
			DedupeKey:  fmt.Sprintf("billing:%s:%s", row.AWB, month),
			Note:       fmt.Sprintf("shipping charge %s", month),
		})
		switch {
		case err == nil:
			status = billingdomain.PaymentPaid
			if disputed {
				status = billingdomain.PaymentDisputed
			}
			walletTxnID = &applyRes.TransactionID
		case errors.Is(err, walletdomain.ErrInsufficientFunds):
			// The billing row still commits; payment is retried after the
			// next top-up.
		default:
			return err
		}

		record.PaymentStatus = status
		record.WalletTxnID = walletTxnID
		if err := tx.Model(&billingdomain.Billing{}).
			Where("id = ?", record.ID).
			Updates(map[string]any{"payment_status": status, "wallet_txn_id": walletTxnID, "updated_at": now}).Error; err != nil {
			return err
		}
		outcome = billingdomain.OutcomeBilled
		return nil
	})
	if err != nil {
		return billingdomain.RowResult{}, err
	}

	e.markCharges(ctx, record)

	return billingdomain.RowResult{AWB: row.AWB, Outcome: outcome, Billing: record}, nil
}

// markCharges records every charge type the billing actually carries. The
// forward mark doubles as the fast-path skip sentinel.
func (e *Engine) markCharges(ctx context.Context, record *billingdomain.Billing) {
	if e.marker == nil {
		return
	}
	ttl := e.cfg().MarkerTTL()
	charges := []idempotency.ChargeType{idempotency.ChargeForward}
	if record.RTOCharge > 0 {
		charges = append(charges, idempotency.ChargeRTO)
	}
	if record.CODCharge > 0 {
		charges = append(charges, idempotency.ChargeCOD)
	}
	for _, charge := range charges {
		if err := e.marker.MarkApplied(ctx, record.AWB, charge, ttl); err != nil {
			e.log.Warn("failed to set idempotency marker", zap.String("awb", record.AWB), zap.Error(err))
		}
	}
}

func (e *Engine) RetryUnpaid(ctx context.Context, merchantID snowflake.ID, limit int) (int, error) {
	wallet, err := e.wallet.GetByMerchant(ctx, merchantID)
	if err != nil {
		return 0, err
	}
	if wallet == nil {
		return 0, walletdomain.ErrWalletNotFound
	}

	var unpaid []billingdomain.Billing
	err = e.db.WithContext(ctx).
		Where("merchant_id = ? AND payment_status = ?", merchantID, billingdomain.PaymentNotPaid).
		Order("created_at asc").
		Limit(limit).
		Find(&unpaid).Error
	if err != nil {
		return 0, err
	}

	paid := 0
	for i := range unpaid {
		record := &unpaid[i]
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			applyRes, err := e.wallet.ApplyTx(ctx, tx, walletdomain.ApplyRequest{
				WalletID:   wallet.ID,
				Amount:     record.TotalAmount,
				Type:       walletdomain.TransactionDebit,
				SourceType: walletdomain.SourceShipment,
				SourceRef:  record.AWB,
				DedupeKey:  fmt.Sprintf("billing:%s:%s", record.AWB, record.BillingMonth),
				Note:       fmt.Sprintf("shipping charge %s (retry)", record.BillingMonth),
			})
			if err != nil {
				return err
			}

			status := billingdomain.PaymentPaid
			var open int64
			if err := tx.Model(&disputedomain.WeightDispute{}).
				Where("billing_id = ? AND status = ?", record.ID, disputedomain.StatusPending).
				Count(&open).Error; err != nil {
				return err
			}
			if open > 0 {
				status = billingdomain.PaymentDisputed
			}
			return tx.Model(&billingdomain.Billing{}).
				Where("id = ?", record.ID).
				Updates(map[string]any{
					"payment_status": status,
					"wallet_txn_id":  applyRes.TransactionID,
					"updated_at":     e.clock.Now(),
				}).Error
		})
		if errors.Is(err, walletdomain.ErrInsufficientFunds) {
			break // oldest-first; nothing younger will fit either
		}
		if err != nil {
			return paid, err
		}
		paid++
	}
	return paid, nil
}

func (e *Engine) loadShipments(ctx context.Context, awbs []string) (map[string]*shipmentdomain.Shipment, error) {
	var records []shipmentdomain.Shipment
	if err := e.db.WithContext(ctx).Where("awb IN ?", awbs).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*shipmentdomain.Shipment, len(records))
	for i := range records {
		out[records[i].AWB] = &records[i]
	}
	return out, nil
}

func (e *Engine) loadTariffs(ctx context.Context, shipments map[string]*shipmentdomain.Shipment) (map[snowflake.ID]*tariffdomain.CourierTariff, error) {
	ids := make([]snowflake.ID, 0, len(shipments))
	seen := make(map[snowflake.ID]bool, len(shipments))
	for _, s := range shipments {
		if !seen[s.TariffID] {
			seen[s.TariffID] = true
			ids = append(ids, s.TariffID)
		}
	}
	if len(ids) == 0 {
		return map[snowflake.ID]*tariffdomain.CourierTariff{}, nil
	}

	var records []tariffdomain.CourierTariff
	if err := e.db.WithContext(ctx).Preload("Rates").Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]*tariffdomain.CourierTariff, len(records))
	for i := range records {
		out[records[i].ID] = &records[i]
	}
	return out, nil
}

func (e *Engine) buildBilling(shipment *shipmentdomain.Shipment, rated ratingdomain.RateResult, observedWeight float64, month string, now time.Time) *billingdomain.Billing {
	diff := rated.ChargeableWeight - rated.OriginalApplicableWeight
	if diff < 0 {
		diff = 0
	}
	return &billingdomain.Billing{
		ID:           e.genID.Generate(),
		AWB:          shipment.AWB,
		BillingMonth: month,
		ShipmentID:   shipment.ID,
		MerchantID:   shipment.MerchantID,
		CourierID:    shipment.CourierID,
		TariffID:     shipment.TariffID,

		Zone:             string(rated.Zone),
		ChargedWeight:    rated.ChargeableWeight,
		OriginalWeight:   shipment.DeclaredWeight,
		WeightDifference: diff,

		BasePrice:     rated.BasePrice,
		ForwardExcess: rated.ForwardExcess,
		RTOCharge:     rated.RTOCharge,
		CODCharge:     rated.CODCharge,
		TotalAmount:   rated.TotalPrice,

		PaymentStatus: billingdomain.PaymentNotPaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *Engine) raiseDispute(ctx context.Context, tx *gorm.DB, record *billingdomain.Billing, rated ratingdomain.RateResult, now time.Time) error {
	dispute := disputedomain.WeightDispute{
		ID:         e.genID.Generate(),
		BillingID:  record.ID,
		AWB:        record.AWB,
		MerchantID: record.MerchantID,

		OriginalWeight: record.OriginalWeight,
		DisputedWeight: rated.ChargeableWeight,

		ForwardExcessAmount: rated.ForwardExcessOverOriginal,
		RTOExcessAmount:     rated.RTOExcessOverOriginal,

		Status:    disputedomain.StatusPending,
		RaisedAt:  now,
		Deadline:  now.Add(e.cfg().DisputeWindow()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&dispute).Error; err != nil {
		return err
	}
	e.metrics.IncDispute("raised")
	return nil
}

func (e *Engine) codAmount(shipment *shipmentdomain.Shipment) int64 {
	if !shipment.COD {
		return 0
	}
	return shipment.CODAmount
}
