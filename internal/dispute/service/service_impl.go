package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	"github.com/parcelcraft/shipledger/internal/config"
	disputedomain "github.com/parcelcraft/shipledger/internal/dispute/domain"
	obsmetrics "github.com/parcelcraft/shipledger/internal/observability/metrics"
	walletdomain "github.com/parcelcraft/shipledger/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Wallet walletdomain.Service

	BillingCfg *config.BillingConfigHolder `optional:"true"`
	Metrics    *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	wallet  walletdomain.Service
	cfg     func() config.BillingConfig
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) disputedomain.Service {
	cfg := func() config.BillingConfig { return config.DefaultBillingConfig() }
	if p.BillingCfg != nil {
		holder := p.BillingCfg
		cfg = func() config.BillingConfig { return holder.Get() }
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("dispute.service"),
		genID:   p.GenID,
		wallet:  p.Wallet,
		cfg:     cfg,
		metrics: p.Metrics,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*disputedomain.WeightDispute, error) {
	var dispute disputedomain.WeightDispute
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&dispute).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &dispute, nil
}

// Accept upholds the merchant declaration: the contested excess is credited
// back and the billing total is revised down to the declared-weight charge.
func (s *Service) Accept(ctx context.Context, id snowflake.ID, actor disputedomain.Actor, note string) error {
	if actor != disputedomain.ActorMerchant && actor != disputedomain.ActorAdmin {
		return disputedomain.ErrActorNotAllowed
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dispute, err := s.lockPending(ctx, tx, id, disputedomain.StatusAccepted, actor, note)
		if err != nil {
			return err
		}

		var billing billingdomain.Billing
		if err := tx.WithContext(ctx).Where("id = ?", dispute.BillingID).First(&billing).Error; err != nil {
			return err
		}

		revised := billing.TotalAmount - dispute.ExcessAmount()
		finalWeight := dispute.OriginalWeight
		if err := tx.Model(&disputedomain.WeightDispute{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"final_weight":   finalWeight,
				"revised_charge": revised,
			}).Error; err != nil {
			return err
		}

		updates := map[string]any{
			"total_amount": revised,
			"updated_at":   time.Now().UTC(),
		}
		refund := false
		switch billing.PaymentStatus {
		case billingdomain.PaymentDisputed, billingdomain.PaymentPaid:
			updates["payment_status"] = billingdomain.PaymentPaid
			refund = true
		}
		if err := tx.Model(&billingdomain.Billing{}).Where("id = ?", billing.ID).Updates(updates).Error; err != nil {
			return err
		}

		// Refund only charges that were actually debited; NOT_PAID rows are
		// simply revised down before the payment retry.
		if refund && dispute.ExcessAmount() > 0 {
			wallet, err := s.wallet.GetByMerchantTx(ctx, tx, dispute.MerchantID)
			if err != nil {
				return err
			}
			if wallet == nil {
				return walletdomain.ErrWalletNotFound
			}
			_, err = s.wallet.ApplyTx(ctx, tx, walletdomain.ApplyRequest{
				WalletID:   wallet.ID,
				Amount:     dispute.ExcessAmount(),
				Type:       walletdomain.TransactionCredit,
				SourceType: walletdomain.SourceAdjustment,
				SourceRef:  dispute.AWB,
				DedupeKey:  fmt.Sprintf("dispute-refund:%d", dispute.ID),
				Note:       "weight dispute accepted",
			})
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncDispute("accepted")
	return nil
}

// Reject upholds the observed weight; the charge stands.
func (s *Service) Reject(ctx context.Context, id snowflake.ID, actor disputedomain.Actor, note string) error {
	if actor != disputedomain.ActorAdmin {
		return disputedomain.ErrActorNotAllowed
	}
	if err := s.closeKeepingCharge(ctx, id, disputedomain.StatusRejected, actor, note); err != nil {
		return err
	}
	s.metrics.IncDispute("rejected")
	return nil
}

func (s *Service) AutoResolveDue(ctx context.Context, now time.Time) (disputedomain.SweepReport, error) {
	var report disputedomain.SweepReport

	var due []disputedomain.WeightDispute
	err := s.db.WithContext(ctx).
		Where("status = ? AND deadline <= ?", disputedomain.StatusPending, now).
		Order("deadline asc").
		Limit(s.cfg().DisputeSweepBatch).
		Find(&due).Error
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	for i := range due {
		err := s.closeKeepingCharge(ctx, due[i].ID, disputedomain.StatusResolved, disputedomain.ActorSystem, "deadline passed without response")
		if err != nil {
			report.Failed++
			s.log.Error("dispute auto-resolution failed",
				zap.Int64("dispute_id", int64(due[i].ID)),
				zap.Error(err),
			)
			continue
		}
		report.Resolved++
		s.metrics.IncDispute("auto_resolved")
	}
	return report, nil
}

func (s *Service) closeKeepingCharge(ctx context.Context, id snowflake.ID, status disputedomain.Status, actor disputedomain.Actor, note string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dispute, err := s.lockPending(ctx, tx, id, status, actor, note)
		if err != nil {
			return err
		}
		return tx.Model(&billingdomain.Billing{}).
			Where("id = ? AND payment_status = ?", dispute.BillingID, billingdomain.PaymentDisputed).
			Updates(map[string]any{
				"payment_status": billingdomain.PaymentPaid,
				"updated_at":     time.Now().UTC(),
			}).Error
	})
}

// lockPending applies the status transition with a guarded update so a
// dispute resolves exactly once even under concurrent actions.
func (s *Service) lockPending(ctx context.Context, tx *gorm.DB, id snowflake.ID, status disputedomain.Status, actor disputedomain.Actor, note string) (*disputedomain.WeightDispute, error) {
	var dispute disputedomain.WeightDispute
	err := tx.WithContext(ctx).Where("id = ?", id).First(&dispute).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, disputedomain.ErrDisputeNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	result := tx.WithContext(ctx).
		Model(&disputedomain.WeightDispute{}).
		Where("id = ? AND status = ?", id, disputedomain.StatusPending).
		Updates(map[string]any{
			"status":          status,
			"resolved_by":     actor,
			"resolution_note": note,
			"resolved_at":     now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, disputedomain.ErrDisputeAlreadyResolved
	}
	return &dispute, nil
}
