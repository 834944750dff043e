package observability

import (
	"github.com/parcelcraft/shipledger/internal/observability/metrics"
	"go.uber.org/fx"
)

// Module provides the prometheus counters.
var Module = fx.Module("observability",
	fx.Provide(metrics.New),
)
