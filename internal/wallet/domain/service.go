package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ApplyRequest describes one wallet mutation. Amount is always positive;
// the type decides the direction.
type ApplyRequest struct {
	WalletID   snowflake.ID
	Amount     int64
	Type       TransactionType
	SourceType SourceType
	SourceRef  string
	// DedupeKey, when set, makes re-application of the same monetary event
	// a no-op instead of a second ledger row.
	DedupeKey string
	Note      string
}

// ApplyResult reports the wallet state after the mutation.
type ApplyResult struct {
	TransactionID snowflake.ID
	NewBalance    int64
	NewHold       int64
	Duplicate     bool
}

// Service is the ledger boundary: every successful mutation writes exactly
// one Transaction row atomically with the wallet update.
type Service interface {
	Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error)
	// ApplyTx runs inside the caller's transaction so billing writes and
	// wallet debits commit or roll back together.
	ApplyTx(ctx context.Context, tx *gorm.DB, req ApplyRequest) (ApplyResult, error)
	Get(ctx context.Context, walletID snowflake.ID) (*Wallet, error)
	GetByMerchant(ctx context.Context, merchantID snowflake.ID) (*Wallet, error)
	// GetByMerchantTx reads through the caller's transaction. Callers that
	// hold an open transaction must use this instead of GetByMerchant, or
	// the read goes to the pool and can deadlock a single-connection pool.
	GetByMerchantTx(ctx context.Context, tx *gorm.DB, merchantID snowflake.ID) (*Wallet, error)
	Create(ctx context.Context, merchantID snowflake.ID, maxNegative int64) (*Wallet, error)
}
