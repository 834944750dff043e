package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies a wallet mutation.
type TransactionType string

const (
	TransactionCredit      TransactionType = "CREDIT"
	TransactionDebit       TransactionType = "DEBIT"
	TransactionHold        TransactionType = "HOLD"
	TransactionHoldRelease TransactionType = "HOLD_RELEASE"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionCredit, TransactionDebit, TransactionHold, TransactionHoldRelease:
		return true
	}
	return false
}

// SourceType links a transaction to the entity that caused it.
type SourceType string

const (
	SourceShipment   SourceType = "shipment"
	SourceInvoice    SourceType = "invoice"
	SourceRecharge   SourceType = "wallet_recharge"
	SourceRemittance SourceType = "remittance"
	SourceAdjustment SourceType = "adjustment"
)

// Wallet funds a merchant's shipment charges. All amounts are paise.
// Invariants after every mutation: usable >= -max_negative, hold >= 0.
type Wallet struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	MerchantID        snowflake.ID `gorm:"not null;uniqueIndex:ux_wallets_merchant"`
	Balance           int64        `gorm:"not null;default:0"`
	HoldAmount        int64        `gorm:"not null;default:0"`
	MaxNegativeAmount int64        `gorm:"not null;default:0"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// UsableAmount is the balance minus funds reserved by holds.
func (w Wallet) UsableAmount() int64 { return w.Balance - w.HoldAmount }

// Transaction is the immutable ledger record: one row per monetary event,
// never updated or deleted.
type Transaction struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	WalletID   snowflake.ID    `gorm:"not null;index"`
	MerchantID snowflake.ID    `gorm:"not null;index"`
	Type       TransactionType `gorm:"type:text;not null"`
	Amount     int64           `gorm:"not null"`

	BalanceBefore int64 `gorm:"not null"`
	BalanceAfter  int64 `gorm:"not null"`
	HoldBefore    int64 `gorm:"not null;default:0"`
	HoldAfter     int64 `gorm:"not null;default:0"`

	SourceType SourceType `gorm:"type:text;not null;index"`
	SourceRef  string     `gorm:"type:text;not null"`
	DedupeKey  *string    `gorm:"type:text;uniqueIndex:ux_wallet_txns_dedupe"`
	Note       string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "wallet_transactions" }
