package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	cycledomain "github.com/parcelcraft/shipledger/internal/billingcycle/domain"
	disputedomain "github.com/parcelcraft/shipledger/internal/dispute/domain"
	"github.com/parcelcraft/shipledger/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type HandlerParam struct {
	fx.In

	Log      *zap.Logger
	Engine   billingdomain.Engine
	Cycles   cycledomain.Service
	Disputes disputedomain.Service
}

// Handler decodes queue tasks and hands them to the services. Payload
// decode errors are marked SkipRetry: a malformed task will not become
// valid by retrying.
type Handler struct {
	log      *zap.Logger
	engine   billingdomain.Engine
	cycles   cycledomain.Service
	disputes disputedomain.Service
}

func NewHandler(p HandlerParam) *Handler {
	return &Handler{
		log:      p.Log.Named("worker.handlers"),
		engine:   p.Engine,
		cycles:   p.Cycles,
		disputes: p.Disputes,
	}
}

func (h *Handler) HandleBillingBatch(ctx context.Context, task *asynq.Task) error {
	var payload queue.BillingBatchPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	result, err := h.engine.ProcessBatch(ctx, payload.BulkOpID, payload.Rows)
	if err != nil {
		return fmt.Errorf("billing batch %s: %w", payload.BulkOpID, err)
	}
	h.log.Info("billing batch processed",
		zap.String("bulk_op_id", payload.BulkOpID.String()),
		zap.Int("processed", result.Processed),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
	)
	return nil
}

func (h *Handler) HandleCycleRun(ctx context.Context, task *asynq.Task) error {
	var payload queue.CycleRunPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	report, err := h.cycles.RunDueCycles(ctx, time.Unix(payload.RequestedAt, 0).UTC())
	if err != nil {
		return fmt.Errorf("cycle run: %w", err)
	}
	h.log.Info("billing cycles processed",
		zap.Int("due", report.Due),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
	)
	return nil
}

func (h *Handler) HandleDisputeSweep(ctx context.Context, task *asynq.Task) error {
	var payload queue.DisputeSweepPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	report, err := h.disputes.AutoResolveDue(ctx, time.Unix(payload.RequestedAt, 0).UTC())
	if err != nil {
		return fmt.Errorf("dispute sweep: %w", err)
	}
	h.log.Info("expired disputes swept",
		zap.Int("due", report.Due),
		zap.Int("resolved", report.Resolved),
		zap.Int("failed", report.Failed),
	)
	return nil
}

type validator interface{ Validate() error }

func decode(task *asynq.Task, out validator) error {
	if err := json.Unmarshal(task.Payload(), out); err != nil {
		return fmt.Errorf("decode %s payload: %w: %w", task.Type(), err, asynq.SkipRetry)
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return nil
}
