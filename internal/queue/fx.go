package queue

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("queue.client",
	fx.Provide(NewClient),
	fx.Invoke(func(lc fx.Lifecycle, c *Client) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return c.Close()
			},
		})
	}),
)
