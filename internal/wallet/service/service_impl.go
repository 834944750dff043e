package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/parcelcraft/shipledger/internal/observability/metrics"
	walletdomain "github.com/parcelcraft/shipledger/internal/wallet/domain"
	pkgdb "github.com/parcelcraft/shipledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) walletdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("wallet.service"),
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, merchantID snowflake.ID, maxNegative int64) (*walletdomain.Wallet, error) {
	now := time.Now().UTC()
	wallet := walletdomain.Wallet{
		ID:                s.genID.Generate(),
		MerchantID:        merchantID,
		MaxNegativeAmount: maxNegative,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) Get(ctx context.Context, walletID snowflake.ID) (*walletdomain.Wallet, error) {
	return s.findWallet(ctx, s.db, "id = ?", walletID)
}

func (s *Service) GetByMerchant(ctx context.Context, merchantID snowflake.ID) (*walletdomain.Wallet, error) {
	return s.findWallet(ctx, s.db, "merchant_id = ?", merchantID)
}

func (s *Service) GetByMerchantTx(ctx context.Context, tx *gorm.DB, merchantID snowflake.ID) (*walletdomain.Wallet, error) {
	return s.findWallet(ctx, tx, "merchant_id = ?", merchantID)
}

func (s *Service) findWallet(ctx context.Context, tx *gorm.DB, cond string, arg any) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := tx.WithContext(ctx).Where(cond, arg).First(&wallet).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) Apply(ctx context.Context, req walletdomain.ApplyRequest) (walletdomain.ApplyResult, error) {
	var result walletdomain.ApplyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.ApplyTx(ctx, tx, req)
		return txErr
	})
	return result, err
}

// ApplyTx performs the guarded atomic wallet update and writes the ledger
// row in the caller's transaction. The WHERE clause of each update encodes
// the financial invariant, so concurrent mutations against one wallet
// serialize at the store and can never produce a lost update.
func (s *Service) ApplyTx(ctx context.Context, tx *gorm.DB, req walletdomain.ApplyRequest) (walletdomain.ApplyResult, error) {
	if req.Amount <= 0 {
		return walletdomain.ApplyResult{}, walletdomain.ErrInvalidAmount
	}
	if !req.Type.Valid() {
		return walletdomain.ApplyResult{}, walletdomain.ErrInvalidTransactionType
	}

	if req.DedupeKey != "" {
		existing, err := s.findTransactionByDedupeKey(ctx, tx, req.DedupeKey)
		if err != nil {
			return walletdomain.ApplyResult{}, err
		}
		if existing != nil {
			wallet, err := s.findWallet(ctx, tx, "id = ?", req.WalletID)
			if err != nil {
				return walletdomain.ApplyResult{}, err
			}
			if wallet == nil {
				return walletdomain.ApplyResult{}, walletdomain.ErrWalletNotFound
			}
			return walletdomain.ApplyResult{
				TransactionID: existing.ID,
				NewBalance:    wallet.Balance,
				NewHold:       wallet.HoldAmount,
				Duplicate:     true,
			}, nil
		}
	}

	now := time.Now().UTC()
	updated, err := s.guardedUpdate(ctx, tx, req, now)
	if err != nil {
		return walletdomain.ApplyResult{}, err
	}
	if !updated {
		wallet, err := s.findWallet(ctx, tx, "id = ?", req.WalletID)
		if err != nil {
			return walletdomain.ApplyResult{}, err
		}
		if wallet == nil {
			return walletdomain.ApplyResult{}, walletdomain.ErrWalletNotFound
		}
		s.metrics.IncWalletRejection(string(req.Type))
		return walletdomain.ApplyResult{}, rejectionError(req.Type)
	}

	wallet, err := s.findWallet(ctx, tx, "id = ?", req.WalletID)
	if err != nil {
		return walletdomain.ApplyResult{}, err
	}
	if wallet == nil {
		return walletdomain.ApplyResult{}, walletdomain.ErrWalletNotFound
	}

	record := buildTransaction(s.genID.Generate(), *wallet, req, now)
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		if pkgdb.IsUniqueViolation(err) && req.DedupeKey != "" {
			// Lost the race to a concurrent application of the same event;
			// the enclosing transaction rolls the wallet update back.
			return walletdomain.ApplyResult{}, err
		}
		return walletdomain.ApplyResult{}, err
	}

	s.metrics.IncWalletTxn(string(req.Type))
	return walletdomain.ApplyResult{
		TransactionID: record.ID,
		NewBalance:    wallet.Balance,
		NewHold:       wallet.HoldAmount,
	}, nil
}

func (s *Service) guardedUpdate(ctx context.Context, tx *gorm.DB, req walletdomain.ApplyRequest, now time.Time) (bool, error) {
	var result *gorm.DB
	switch req.Type {
	case walletdomain.TransactionCredit:
		result = tx.WithContext(ctx).Exec(
			`UPDATE wallets SET balance = balance + ?, updated_at = ? WHERE id = ?`,
			req.Amount, now, req.WalletID,
		)
	case walletdomain.TransactionDebit:
		result = tx.WithContext(ctx).Exec(
			`UPDATE wallets SET balance = balance - ?, updated_at = ?
			 WHERE id = ? AND balance - ? >= -max_negative_amount`,
			req.Amount, now, req.WalletID, req.Amount,
		)
	case walletdomain.TransactionHold:
		result = tx.WithContext(ctx).Exec(
			`UPDATE wallets SET hold_amount = hold_amount + ?, updated_at = ?
			 WHERE id = ? AND balance - hold_amount >= ?`,
			req.Amount, now, req.WalletID, req.Amount,
		)
	case walletdomain.TransactionHoldRelease:
		result = tx.WithContext(ctx).Exec(
			`UPDATE wallets SET hold_amount = hold_amount - ?, updated_at = ?
			 WHERE id = ? AND hold_amount - ? >= 0`,
			req.Amount, now, req.WalletID, req.Amount,
		)
	default:
		return false, walletdomain.ErrInvalidTransactionType
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) findTransactionByDedupeKey(ctx context.Context, tx *gorm.DB, key string) (*walletdomain.Transaction, error) {
	var record walletdomain.Transaction
	err := tx.WithContext(ctx).Where("dedupe_key = ?", key).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func buildTransaction(id snowflake.ID, after walletdomain.Wallet, req walletdomain.ApplyRequest, now time.Time) walletdomain.Transaction {
	record := walletdomain.Transaction{
		ID:            id,
		WalletID:      after.ID,
		MerchantID:    after.MerchantID,
		Type:          req.Type,
		Amount:        req.Amount,
		BalanceBefore: after.Balance,
		BalanceAfter:  after.Balance,
		HoldBefore:    after.HoldAmount,
		HoldAfter:     after.HoldAmount,
		SourceType:    req.SourceType,
		SourceRef:     req.SourceRef,
		Note:          req.Note,
		CreatedAt:     now,
	}
	if req.DedupeKey != "" {
		key := req.DedupeKey
		record.DedupeKey = &key
	}

	switch req.Type {
	case walletdomain.TransactionCredit:
		record.BalanceBefore = after.Balance - req.Amount
	case walletdomain.TransactionDebit:
		record.BalanceBefore = after.Balance + req.Amount
	case walletdomain.TransactionHold:
		record.HoldBefore = after.HoldAmount - req.Amount
	case walletdomain.TransactionHoldRelease:
		record.HoldBefore = after.HoldAmount + req.Amount
	}
	return record
}

func rejectionError(t walletdomain.TransactionType) error {
	switch t {
	case walletdomain.TransactionDebit:
		return walletdomain.ErrInsufficientFunds
	case walletdomain.TransactionHold:
		return walletdomain.ErrHoldExceedsAvailable
	case walletdomain.TransactionHoldRelease:
		return walletdomain.ErrHoldReleaseUnderflow
	default:
		return walletdomain.ErrInvalidTransactionType
	}
}
