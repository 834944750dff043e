package bulkop

import (
	"github.com/parcelcraft/shipledger/internal/bulkop/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bulkop.service",
	fx.Provide(service.NewService),
)
