package ratelimit

import "go.uber.org/fx"

// Module provides the redis lock and dispatch rate limiter.
var Module = fx.Module("ratelimit",
	fx.Provide(
		NewLocker,
		NewTokenBucket,
	),
)
