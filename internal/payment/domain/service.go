package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service handles wallet recharges: opening a gateway session and applying
// the credit when the gateway confirms.
type Service interface {
	// InitiateTopup opens a checkout session and records the attempt.
	InitiateTopup(ctx context.Context, merchantID snowflake.ID, amount int64) (*WalletTopup, error)
	// ConfirmWebhook verifies and applies one gateway callback. Replays
	// are no-ops.
	ConfirmWebhook(ctx context.Context, payload []byte, signature string) error
	// ReconcilePending re-checks stale PENDING topups against the gateway.
	ReconcilePending(ctx context.Context, limit int) (int, error)
}
