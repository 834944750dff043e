package dispute

import (
	"github.com/parcelcraft/shipledger/internal/dispute/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispute.service",
	fx.Provide(service.NewService),
)
