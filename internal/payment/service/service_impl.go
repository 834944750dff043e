package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/parcelcraft/shipledger/internal/payment/domain"
	walletdomain "github.com/parcelcraft/shipledger/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Wallet  walletdomain.Service
	Gateway paymentdomain.Gateway
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	wallet  walletdomain.Service
	gateway paymentdomain.Gateway
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		wallet:  p.Wallet,
		gateway: p.Gateway,
	}
}

func (s *Service) InitiateTopup(ctx context.Context, merchantID snowflake.ID, amount int64) (*paymentdomain.WalletTopup, error) {
	if amount <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	wallet, err := s.wallet.GetByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, walletdomain.ErrWalletNotFound
	}

	id := s.genID.Generate()
	session, err := s.gateway.CreateSession(ctx, amount, id.String())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	topup := paymentdomain.WalletTopup{
		ID:         id,
		MerchantID: merchantID,
		WalletID:   wallet.ID,
		Amount:     amount,
		GatewayRef: session.Ref,
		Status:     paymentdomain.TopupPending,
		SessionURL: session.RedirectURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&topup).Error; err != nil {
		return nil, err
	}
	return &topup, nil
}

func (s *Service) ConfirmWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.gateway.VerifySignature(payload, signature) {
		return paymentdomain.ErrInvalidSignature
	}

	var event paymentdomain.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrInvalidTopupEvent, err)
	}
	if event.Ref == "" {
		return paymentdomain.ErrInvalidTopupEvent
	}

	switch event.Status {
	case "success":
		return s.settle(ctx, event.Ref, paymentdomain.TopupSuccess)
	case "failed":
		return s.settle(ctx, event.Ref, paymentdomain.TopupFailed)
	default:
		return paymentdomain.ErrInvalidTopupEvent
	}
}

func (s *Service) ReconcilePending(ctx context.Context, limit int) (int, error) {
	var pending []paymentdomain.WalletTopup
	err := s.db.WithContext(ctx).
		Where("status = ?", paymentdomain.TopupPending).
		Order("created_at asc").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range pending {
		status, err := s.gateway.CheckStatus(ctx, pending[i].GatewayRef)
		if err != nil {
			s.log.Warn("gateway status check failed",
				zap.String("gateway_ref", pending[i].GatewayRef),
				zap.Error(err),
			)
			continue
		}
		if status != paymentdomain.TopupSuccess && status != paymentdomain.TopupFailed {
			continue
		}
		if err := s.settle(ctx, pending[i].GatewayRef, status); err != nil {
			s.log.Warn("topup settlement failed",
				zap.String("gateway_ref", pending[i].GatewayRef),
				zap.Error(err),
			)
			continue
		}
		settled++
	}
	return settled, nil
}

// settle finalizes a topup exactly once. The guarded status update wins for
// one caller only; the wallet credit also carries a dedupe key as the
// durable backstop.
func (s *Service) settle(ctx context.Context, gatewayRef string, status paymentdomain.TopupStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var topup paymentdomain.WalletTopup
		err := tx.Where("gateway_ref = ?", gatewayRef).First(&topup).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return paymentdomain.ErrTopupNotFound
			}
			return err
		}

		now := time.Now().UTC()
		result := tx.Model(&paymentdomain.WalletTopup{}).
			Where("gateway_ref = ? AND status IN ?", gatewayRef,
				[]paymentdomain.TopupStatus{paymentdomain.TopupCreated, paymentdomain.TopupPending}).
			Updates(map[string]any{
				"status":       status,
				"completed_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Replayed webhook; already settled.
			return nil
		}

		if status != paymentdomain.TopupSuccess {
			return nil
		}
		_, err = s.wallet.ApplyTx(ctx, tx, walletdomain.ApplyRequest{
			WalletID:   topup.WalletID,
			Amount:     topup.Amount,
			Type:       walletdomain.TransactionCredit,
			SourceType: walletdomain.SourceRecharge,
			SourceRef:  gatewayRef,
			DedupeKey:  fmt.Sprintf("topup:%s", gatewayRef),
			Note:       "wallet recharge",
		})
		return err
	})
}
