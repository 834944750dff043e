package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type TopupStatus string

const (
	TopupCreated TopupStatus = "CREATED"
	TopupPending TopupStatus = "PENDING"
	TopupSuccess TopupStatus = "SUCCESS"
	TopupFailed  TopupStatus = "FAILED"
)

var (
	ErrTopupNotFound     = errors.New("wallet topup not found")
	ErrInvalidSignature  = errors.New("webhook signature verification failed")
	ErrInvalidTopupEvent = errors.New("invalid topup webhook event")
)

// WalletTopup records one recharge attempt. GatewayRef is the gateway's
// transaction id and doubles as the wallet dedupe key, so a replayed
// webhook can never credit twice.
type WalletTopup struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	MerchantID snowflake.ID `gorm:"not null;index"`
	WalletID   snowflake.ID `gorm:"not null;index"`

	Amount     int64       `gorm:"not null"` // paise
	GatewayRef string      `gorm:"type:text;not null;uniqueIndex:ux_wallet_topups_gateway_ref"`
	Status     TopupStatus `gorm:"type:text;not null;default:'CREATED';index"`
	SessionURL string      `gorm:"type:text"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (WalletTopup) TableName() string { return "wallet_topups" }

// Session is a hosted-checkout handle returned by the gateway.
type Session struct {
	Ref         string
	RedirectURL string
}

// WebhookEvent is the decoded gateway callback.
type WebhookEvent struct {
	Ref    string `json:"ref"`
	Status string `json:"status"` // "success" or "failed"
	Amount int64  `json:"amount"`
}

// Gateway abstracts the payment provider. Signature verification happens
// before the event body is trusted.
type Gateway interface {
	CreateSession(ctx context.Context, amount int64, reference string) (*Session, error)
	CheckStatus(ctx context.Context, ref string) (TopupStatus, error)
	VerifySignature(payload []byte, signature string) bool
}
