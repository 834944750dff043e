package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/parcelcraft/shipledger/internal/billing"
	"github.com/parcelcraft/shipledger/internal/billingcycle"
	"github.com/parcelcraft/shipledger/internal/bulkop"
	"github.com/parcelcraft/shipledger/internal/clock"
	"github.com/parcelcraft/shipledger/internal/config"
	"github.com/parcelcraft/shipledger/internal/dispute"
	"github.com/parcelcraft/shipledger/internal/idempotency"
	"github.com/parcelcraft/shipledger/internal/logger"
	"github.com/parcelcraft/shipledger/internal/migration"
	"github.com/parcelcraft/shipledger/internal/observability"
	"github.com/parcelcraft/shipledger/internal/payment"
	"github.com/parcelcraft/shipledger/internal/queue"
	"github.com/parcelcraft/shipledger/internal/ratelimit"
	"github.com/parcelcraft/shipledger/internal/rating"
	"github.com/parcelcraft/shipledger/internal/redisconn"
	"github.com/parcelcraft/shipledger/internal/scheduler"
	"github.com/parcelcraft/shipledger/internal/wallet"
	"github.com/parcelcraft/shipledger/internal/worker"
	"github.com/parcelcraft/shipledger/pkg/db"
	"go.uber.org/fx"
)

// Single-process deployment: worker, scheduler and queue client in one app.
func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisconn.Module,
		ratelimit.Module,
		idempotency.Module,
		migration.Module,

		// Functional domains
		rating.Module,
		wallet.Module,
		bulkop.Module,
		billing.Module,
		billingcycle.Module,
		dispute.Module,
		payment.Module,

		// Queue plumbing
		queue.Module,
		worker.Module,

		// Periodic jobs
		scheduler.Module,
		fx.Invoke(scheduler.Start),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
