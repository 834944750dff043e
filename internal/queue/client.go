package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/parcelcraft/shipledger/internal/config"
	"github.com/parcelcraft/shipledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Queue names by priority weight.
const (
	QueueBilling = "billing"
	QueueDispute = "dispute"
	QueueDefault = "default"
)

const dispatchBucketKey = "dispatch:billing"

// ErrDispatchThrottled is returned when the token bucket has no capacity;
// callers retry after RateLimitResult.RetryAfter.
type ErrDispatchThrottled struct {
	RetryAfter time.Duration
}

func (e *ErrDispatchThrottled) Error() string {
	return fmt.Sprintf("dispatch throttled, retry after %s", e.RetryAfter)
}

type ClientParam struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger

	Limiter    *ratelimit.TokenBucket      `optional:"true"`
	BillingCfg *config.BillingConfigHolder `optional:"true"`
}

// Client enqueues durable tasks. Batch dispatch is paced through a shared
// token bucket so a burst of uploads cannot flood the workers.
type Client struct {
	inner      *asynq.Client
	log        *zap.Logger
	cfg        config.WorkerConfig
	limiter    *ratelimit.TokenBucket
	jobTimeout func() time.Duration
}

func NewClient(p ClientParam) *Client {
	jobTimeout := func() time.Duration { return config.DefaultBillingConfig().JobTimeout() }
	if p.BillingCfg != nil {
		holder := p.BillingCfg
		jobTimeout = func() time.Duration { return holder.Get().JobTimeout() }
	}
	return &Client{
		inner: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     p.Cfg.RedisAddr,
			Password: p.Cfg.RedisPassword,
			DB:       p.Cfg.RedisDB,
		}),
		log:        p.Log.Named("queue.client"),
		cfg:        p.Cfg.Worker,
		limiter:    p.Limiter,
		jobTimeout: jobTimeout,
	}
}

// EnqueueBillingBatch submits an uploaded batch. The task id is the bulk
// operation id, so a double submit of the same upload lands once.
func (c *Client) EnqueueBillingBatch(ctx context.Context, payload BillingBatchPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	if c.limiter != nil {
		res, err := c.limiter.Allow(ctx, dispatchBucketKey, c.cfg.DispatchRate, c.cfg.DispatchBurst)
		if err != nil {
			c.log.Warn("rate limiter unavailable, dispatching anyway", zap.Error(err))
		} else if !res.Allowed {
			return &ErrDispatchThrottled{RetryAfter: res.RetryAfter}
		}
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeBillingBatch, body)
	info, err := c.inner.EnqueueContext(ctx, task,
		asynq.Queue(QueueBilling),
		asynq.TaskID(payload.BulkOpID.String()),
		asynq.MaxRetry(c.cfg.MaxRetry),
		asynq.Timeout(c.jobTimeout()),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.log.Info("billing batch already enqueued", zap.String("bulk_op_id", payload.BulkOpID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	c.log.Info("billing batch enqueued",
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.Int("rows", len(payload.Rows)),
	)
	return nil
}

// EnqueueCycleRun schedules a cycle pass.
func (c *Client) EnqueueCycleRun(ctx context.Context, payload CycleRunPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	_, err = c.inner.EnqueueContext(ctx, asynq.NewTask(TypeCycleRun, body),
		asynq.Queue(QueueBilling),
		asynq.MaxRetry(c.cfg.MaxRetry),
		asynq.Timeout(c.jobTimeout()),
	)
	return err
}

// EnqueueDisputeSweep schedules an auto-resolution pass.
func (c *Client) EnqueueDisputeSweep(ctx context.Context, payload DisputeSweepPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	_, err = c.inner.EnqueueContext(ctx, asynq.NewTask(TypeDisputeSweep, body),
		asynq.Queue(QueueDispute),
		asynq.MaxRetry(c.cfg.MaxRetry),
		asynq.Timeout(c.jobTimeout()),
	)
	return err
}

func (c *Client) Close() error {
	return c.inner.Close()
}
