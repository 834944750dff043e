package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	cycledomain "github.com/parcelcraft/shipledger/internal/billingcycle/domain"
	bulkopdomain "github.com/parcelcraft/shipledger/internal/bulkop/domain"
	"github.com/parcelcraft/shipledger/internal/config"
	shipmentdomain "github.com/parcelcraft/shipledger/internal/shipment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Engine  billingdomain.Engine
	BulkOps bulkopdomain.Service

	BillingCfg *config.BillingConfigHolder `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	engine  billingdomain.Engine
	bulkOps bulkopdomain.Service
	cfg     func() config.BillingConfig
}

func NewService(p ServiceParam) cycledomain.Service {
	cfg := func() config.BillingConfig { return config.DefaultBillingConfig() }
	if p.BillingCfg != nil {
		holder := p.BillingCfg
		cfg = func() config.BillingConfig { return holder.Get() }
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("billingcycle.service"),
		genID:   p.GenID,
		engine:  p.Engine,
		bulkOps: p.BulkOps,
		cfg:     cfg,
	}
}

func (s *Service) Bootstrap(ctx context.Context, merchantID snowflake.ID, start time.Time, cycleDays int) (*cycledomain.BillingCycle, error) {
	now := time.Now().UTC()
	start = start.UTC()
	end := start.AddDate(0, 0, cycleDays)
	cycle := cycledomain.BillingCycle{
		ID:             s.genID.Generate(),
		MerchantID:     merchantID,
		CycleStartDate: start,
		CycleEndDate:   end,
		CycleDays:      cycleDays,
		NextCycleDate:  end,
		Status:         cycledomain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&cycle).Error; err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*cycledomain.BillingCycle, error) {
	var cycle cycledomain.BillingCycle
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&cycle).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

func (s *Service) RunDueCycles(ctx context.Context, now time.Time) (cycledomain.RunReport, error) {
	var report cycledomain.RunReport

	var due []cycledomain.BillingCycle
	err := s.db.WithContext(ctx).
		Where("status IN ? AND next_cycle_date <= ?", []cycledomain.Status{cycledomain.StatusPending, cycledomain.StatusFailed}, now).
		Order("next_cycle_date asc").
		Limit(s.cfg().CycleBatchSize).
		Find(&due).Error
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	for i := range due {
		cycle := &due[i]
		if err := s.runCycle(ctx, cycle, now); err != nil {
			report.Failed++
			s.log.Error("billing cycle failed",
				zap.Int64("cycle_id", int64(cycle.ID)),
				zap.Int64("merchant_id", int64(cycle.MerchantID)),
				zap.Error(err),
			)
			if markErr := s.markFailed(ctx, cycle.ID, err.Error()); markErr != nil {
				s.log.Error("failed to mark cycle failed", zap.Error(markErr))
			}
			continue
		}
		report.Completed++
	}
	return report, nil
}

func (s *Service) runCycle(ctx context.Context, cycle *cycledomain.BillingCycle, now time.Time) error {
	if err := s.setStatus(ctx, cycle.ID, cycledomain.StatusProcessing, now); err != nil {
		return err
	}

	shipments, err := s.eligibleShipments(ctx, cycle)
	if err != nil {
		return err
	}

	rows := make([]billingdomain.Row, 0, len(shipments))
	awbs := make([]string, 0, len(shipments))
	for i := range shipments {
		rows = append(rows, billingdomain.Row{AWB: shipments[i].AWB, Weight: shipments[i].DeclaredWeight})
		awbs = append(awbs, shipments[i].AWB)
	}

	var result billingdomain.BatchResult
	if len(rows) > 0 {
		op, err := s.bulkOps.Create(ctx, bulkopdomain.KindCycleRun, len(rows), map[string]any{
			"cycle_id":    cycle.ID.String(),
			"merchant_id": cycle.MerchantID.String(),
		})
		if err != nil {
			return err
		}
		result, err = s.engine.ProcessBatch(ctx, op.ID, rows)
		if err != nil {
			return err
		}
	}

	total, err := s.billedTotal(ctx, awbs, billingdomain.MonthOf(now))
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&cycledomain.BillingCycle{}).
			Where("id = ?", cycle.ID).
			Updates(map[string]any{
				"status":         cycledomain.StatusCompleted,
				"shipment_count": result.Processed,
				"success_count":  result.Success,
				"failed_count":   result.Failed,
				"total_amount":   total,
				"processed_at":   now,
				"error_message":  "",
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}

		// The (merchant_id, cycle_start_date) unique index makes re-runs of
		// a completed cycle insert nothing.
		successor := cycle.Successor(s.genID.Generate(), now)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "cycle_start_date"}},
			DoNothing: true,
		}).Create(&successor).Error
	})
}

// eligibleShipments returns the window's billable, not-yet-billed shipments.
func (s *Service) eligibleShipments(ctx context.Context, cycle *cycledomain.BillingCycle) ([]shipmentdomain.Shipment, error) {
	var shipments []shipmentdomain.Shipment
	err := s.db.WithContext(ctx).
		Where("merchant_id = ?", cycle.MerchantID).
		Where("created_at >= ? AND created_at < ?", cycle.CycleStartDate, cycle.CycleEndDate).
		Where("status NOT IN ?", []shipmentdomain.ShipmentStatus{
			shipmentdomain.StatusNew,
			shipmentdomain.StatusPickupPending,
			shipmentdomain.StatusCancelled,
		}).
		Where("NOT EXISTS (SELECT 1 FROM billings WHERE billings.awb = shipments.awb)").
		Order("created_at asc").
		Find(&shipments).Error
	return shipments, err
}

func (s *Service) billedTotal(ctx context.Context, awbs []string, month string) (int64, error) {
	if len(awbs) == 0 {
		return 0, nil
	}
	var total *int64
	err := s.db.WithContext(ctx).
		Model(&billingdomain.Billing{}).
		Select("SUM(total_amount)").
		Where("awb IN ? AND billing_month = ?", awbs, month).
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}

func (s *Service) setStatus(ctx context.Context, id snowflake.ID, status cycledomain.Status, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&cycledomain.BillingCycle{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
}

func (s *Service) markFailed(ctx context.Context, id snowflake.ID, reason string) error {
	return s.db.WithContext(ctx).
		Model(&cycledomain.BillingCycle{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        cycledomain.StatusFailed,
			"error_message": reason,
			"updated_at":    time.Now().UTC(),
		}).Error
}
