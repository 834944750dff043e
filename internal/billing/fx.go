package billing

import (
	"github.com/parcelcraft/shipledger/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.engine",
	fx.Provide(service.NewEngine),
)
