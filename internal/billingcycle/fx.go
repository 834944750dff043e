package billingcycle

import (
	"github.com/parcelcraft/shipledger/internal/billingcycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingcycle.service",
	fx.Provide(service.NewService),
)
