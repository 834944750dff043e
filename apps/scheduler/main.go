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
	"github.com/parcelcraft/shipledger/internal/observability"
	"github.com/parcelcraft/shipledger/internal/payment"
	"github.com/parcelcraft/shipledger/internal/ratelimit"
	"github.com/parcelcraft/shipledger/internal/rating"
	"github.com/parcelcraft/shipledger/internal/redisconn"
	"github.com/parcelcraft/shipledger/internal/scheduler"
	"github.com/parcelcraft/shipledger/internal/wallet"
	"github.com/parcelcraft/shipledger/pkg/db"
	"go.uber.org/fx"
)

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

		// Domain services required by the jobs
		rating.Module,
		wallet.Module,
		bulkop.Module,
		billing.Module,
		billingcycle.Module,
		dispute.Module,
		payment.Module,

		// No worker module: this process only runs the periodic jobs.
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
