package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/internal/clock"
	meterdomain "github.com/smallbiznis/dormhub/internal/meterstate/domain"
	obsmetrics "github.com/smallbiznis/dormhub/internal/observability/metrics"
	"github.com/smallbiznis/dormhub/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobMarkOverdue         = "mark_overdue"
	JobReconcileMeterState = "reconcile_meter_state"

	lockKeyPrefix = "dormhub:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingSvc billingdomain.Service
	Reconciler meterdomain.Reconciler
	Locker     *ratelimit.Locker `optional:"true"`
	Config     Config            `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	billingSvc billingdomain.Service
	reconciler meterdomain.Reconciler
	locker     *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.BillingSvc == nil || p.Reconciler == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		billingSvc: p.BillingSvc,
		reconciler: p.Reconciler,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A timed out sweep resumes on the next tick.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// runExclusive runs the job only on the replica holding its lock. Without
// redis every replica runs it; both jobs are idempotent sweeps.
func (s *Scheduler) runExclusive(parent context.Context, name string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return s.runJob(parent, name, s.cfg.JobTimeout, fn)
	}

	key := lockKeyPrefix + name
	token, acquired, err := s.locker.TryLock(parent, key, s.cfg.LockTTL)
	if err != nil {
		s.logger(parent).Warn("scheduler.lock.unavailable", zap.String("job", name), zap.Error(err))
		return s.runJob(parent, name, s.cfg.JobTimeout, fn)
	}
	if !acquired {
		obsmetrics.Scheduler().IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		s.logger(parent).Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", obsmetrics.SchedulerSkipReasonLockHeld))
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("scheduler.lock.release_failed", zap.String("job", name), zap.Error(err))
		}
	}()
	return s.runJob(parent, name, s.cfg.JobTimeout, fn)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobMarkOverdue, s.MarkOverdueJob},
		{JobReconcileMeterState, s.ReconcileMeterStateJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runExclusive(parent, job.Name, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// MarkOverdueJob persists the overdue status for pending billings past due.
func (s *Scheduler) MarkOverdueJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobMarkOverdue)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	rows, err := s.billingSvc.MarkOverdue(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.overdue.failed", JobMarkOverdue, err)
		return err
	}
	run.AddProcessed(int(rows))
	obsmetrics.Scheduler().AddRowsAffected(JobMarkOverdue, "billings", rows)
	return nil
}

// ReconcileMeterStateJob repairs occupancy readings left stale by a partial
// propagation.
func (s *Scheduler) ReconcileMeterStateJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconcileMeterState)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	rows, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.failed", JobReconcileMeterState, err)
		return err
	}
	run.AddProcessed(int(rows))
	obsmetrics.Scheduler().AddRowsAffected(JobReconcileMeterState, "occupancies", rows)
	return nil
}
