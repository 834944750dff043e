package payment

import (
	"github.com/parcelcraft/shipledger/internal/payment/gateway"
	"github.com/parcelcraft/shipledger/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		gateway.New,
		service.NewService,
	),
)
