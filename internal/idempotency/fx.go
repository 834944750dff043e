package idempotency

import "go.uber.org/fx"

// Module provides the redis-backed charge marker.
var Module = fx.Module("idempotency",
	fx.Provide(NewRedisMarker),
)
