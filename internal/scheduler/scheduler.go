package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	cycledomain "github.com/parcelcraft/shipledger/internal/billingcycle/domain"
	"github.com/parcelcraft/shipledger/internal/clock"
	disputedomain "github.com/parcelcraft/shipledger/internal/dispute/domain"
	obsmetrics "github.com/parcelcraft/shipledger/internal/observability/metrics"
	paymentdomain "github.com/parcelcraft/shipledger/internal/payment/domain"
	"github.com/parcelcraft/shipledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tickLockKey = "scheduler:tick"

type Param struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Cycles   cycledomain.Service
	Disputes disputedomain.Service
	Payments paymentdomain.Service

	Cfg     Config              `optional:"true"`
	Locker  *ratelimit.Locker   `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs. With multiple replicas the
// redis lock elects one runner per tick; without redis every replica runs,
// which is safe because every job is idempotent, just wasteful.
type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	cycles   cycledomain.Service
	disputes disputedomain.Service
	payments paymentdomain.Service
	cfg      Config
	locker   *ratelimit.Locker
	metrics  *obsmetrics.Metrics
}

func New(p Param) *Scheduler {
	return &Scheduler{
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		cycles:   p.Cycles,
		disputes: p.Disputes,
		payments: p.Payments,
		cfg:      p.Cfg.withDefaults(),
		locker:   p.Locker,
		metrics:  p.Metrics,
	}
}

// RunForever ticks until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.Duration("interval", s.cfg.RunInterval),
		zap.Strings("jobs", s.cfg.EnabledJobs),
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("scheduler tick had failures", zap.Error(err))
			}
		}
	}
}

// RunOnce runs every enabled job. Job failures are collected, never fatal
// to the tick.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(ctx, tickLockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("scheduler lock unavailable, running unlocked", zap.Error(err))
		} else if !acquired {
			s.log.Debug("scheduler tick held by another replica")
			return nil
		} else {
			defer func() {
				// The tick context may already be cancelled on shutdown;
				// the lock still has to be freed, not left to expire.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.locker.Release(releaseCtx, tickLockKey, token); err != nil {
					s.log.Warn("scheduler lock release failed", zap.Error(err))
				}
			}()
		}
	}

	var errs []error
	errs = append(errs, s.runJob(ctx, JobBillingCycles, func(ctx context.Context) error {
		report, err := s.cycles.RunDueCycles(ctx, s.clock.Now())
		if err != nil {
			return err
		}
		if report.Due > 0 {
			s.log.Info("billing cycles run",
				zap.Int("due", report.Due),
				zap.Int("completed", report.Completed),
				zap.Int("failed", report.Failed),
			)
		}
		return nil
	}))
	errs = append(errs, s.runJob(ctx, JobDisputeSweep, func(ctx context.Context) error {
		report, err := s.disputes.AutoResolveDue(ctx, s.clock.Now())
		if err != nil {
			return err
		}
		if report.Due > 0 {
			s.log.Info("dispute sweep run",
				zap.Int("due", report.Due),
				zap.Int("resolved", report.Resolved),
				zap.Int("failed", report.Failed),
			)
		}
		return nil
	}))
	errs = append(errs, s.runJob(ctx, JobTopupReconcile, func(ctx context.Context) error {
		settled, err := s.payments.ReconcilePending(ctx, s.cfg.TopupReconcileBatch)
		if err != nil {
			return err
		}
		if settled > 0 {
			s.log.Info("pending topups reconciled", zap.Int("settled", settled))
		}
		return nil
	}))
	return errors.Join(errs...)
}

func (s *Scheduler) runJob(ctx context.Context, name string, fn func(context.Context) error) error {
	if !s.cfg.enabled(name) {
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	s.metrics.IncJobRun(name)
	started := time.Now()
	if err := fn(jobCtx); err != nil {
		s.metrics.IncJobError(name)
		s.log.Error("job failed",
			zap.String("job", name),
			zap.Duration("took", time.Since(started)),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.log.Debug("job done",
		zap.String("job", name),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}
