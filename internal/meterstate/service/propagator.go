package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/config"
	"github.com/smallbiznis/dormhub/internal/meterstate/domain"
	"github.com/smallbiznis/dormhub/internal/observability/logger"
	"github.com/smallbiznis/dormhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Repo          domain.Repository
	BillingConfig *config.BillingConfigHolder
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    domain.Repository
	cfg     *config.BillingConfigHolder
	metrics *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("meterstate.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		cfg:     p.BillingConfig,
		metrics: p.Metrics,
	}
}

func NewPropagator(s *Service) domain.Propagator { return s }

func NewReconciler(s *Service) domain.Reconciler { return s }

// Propagate fans the writes out with a bounded errgroup. Every goroutine
// returns nil so one failure never cancels its siblings.
func (s *Service) Propagate(ctx context.Context, roomID snowflake.ID, targets []domain.OccupantTarget, reading decimal.Decimal) domain.PropagationResult {
	result := domain.PropagationResult{
		RoomID:   roomID,
		Reading:  reading,
		Outcomes: make([]domain.OccupantOutcome, len(targets)),
	}
	if len(targets) == 0 {
		return result
	}

	now := s.clock.Now()
	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for i, target := range targets {
		g.Go(func() error {
			err := s.repo.UpdateOccupantReading(ctx, s.db, target.OccupancyID, reading, now)
			outcome := domain.OccupantOutcome{
				OccupancyID: target.OccupancyID,
				TenantID:    target.TenantID,
				Err:         err,
			}
			if err != nil {
				outcome.Error = err.Error()
			}
			result.Outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range result.Outcomes {
		if outcome.OK() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	if result.Partial() {
		s.metrics.RecordPropagationFailures(ctx, result.Failed)
		logger.WithContext(ctx, s.log).Warn("meter propagation partially failed",
			zap.String("room_id", roomID.String()),
			zap.String("reading", reading.String()),
			zap.Int("failed", result.Failed),
			zap.Int("succeeded", result.Succeeded),
		)
	}
	return result
}

func (s *Service) Reconcile(ctx context.Context) (int64, error) {
	rows, err := s.repo.ReconcileOccupants(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		logger.WithContext(ctx, s.log).Info("occupancy meter readings reconciled", zap.Int64("rows", rows))
	}
	return rows, nil
}

func (s *Service) concurrency() int {
	if s.cfg == nil {
		return 4
	}
	if n := s.cfg.Get().PropagationConcurrency; n > 0 {
		return n
	}
	return 4
}
