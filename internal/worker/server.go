package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/parcelcraft/shipledger/internal/config"
	"github.com/parcelcraft/shipledger/internal/queue"
	"github.com/parcelcraft/shipledger/internal/worker/handlers"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServerParam struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// NewServer builds the queue consumer. Billing work outweighs dispute
// sweeps, which outweigh anything else.
func NewServer(p ServerParam) *asynq.Server {
	log := p.Log.Named("worker.server")
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     p.Cfg.RedisAddr,
			Password: p.Cfg.RedisPassword,
			DB:       p.Cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: p.Cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueBilling: p.Cfg.Worker.QueueBilling,
				queue.QueueDispute: p.Cfg.Worker.QueueDispute,
				queue.QueueDefault: p.Cfg.Worker.QueueDefault,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Error("task failed",
					zap.String("type", task.Type()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)
}

// NewMux routes task types to their handlers.
func NewMux(h *handlers.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeBillingBatch, h.HandleBillingBatch)
	mux.HandleFunc(queue.TypeCycleRun, h.HandleCycleRun)
	mux.HandleFunc(queue.TypeDisputeSweep, h.HandleDisputeSweep)
	return mux
}

var Module = fx.Module("worker",
	fx.Provide(
		handlers.NewHandler,
		NewServer,
		NewMux,
	),
	fx.Invoke(func(lc fx.Lifecycle, srv *asynq.Server, mux *asynq.ServeMux, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				log.Info("starting queue worker")
				return srv.Start(mux)
			},
			OnStop: func(ctx context.Context) error {
				srv.Shutdown()
				return nil
			},
		})
	}),
)
