package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/dormhub/internal/audit/domain"
	"github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/config"
	meterdomain "github.com/smallbiznis/dormhub/internal/meterstate/domain"
	"github.com/smallbiznis/dormhub/internal/observability/logger"
	"github.com/smallbiznis/dormhub/internal/observability/metrics"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	"github.com/smallbiznis/dormhub/pkg/db"
	"github.com/smallbiznis/dormhub/pkg/db/option"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	TenantRepo    tenantdomain.Repository
	MeterRepo     meterdomain.Repository
	Aggregator    occupancydomain.Aggregator
	Propagator    meterdomain.Propagator
	BillingConfig *config.BillingConfigHolder
	Metrics       *metrics.Metrics     `optional:"true"`
	AuditSvc      auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	tenantRepo tenantdomain.Repository
	meterRepo  meterdomain.Repository
	aggregator occupancydomain.Aggregator
	propagator meterdomain.Propagator
	cfg        *config.BillingConfigHolder
	metrics    *metrics.Metrics
	auditSvc   auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		tenantRepo: p.TenantRepo,
		meterRepo:  p.MeterRepo,
		aggregator: p.Aggregator,
		propagator: p.Propagator,
		cfg:        p.BillingConfig,
		metrics:    p.Metrics,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Preview(ctx context.Context, req domain.PreviewRequest) (domain.Breakdown, error) {
	snapshot, err := s.aggregator.SnapshotForRoom(ctx, req.RoomID)
	if err != nil {
		return domain.Breakdown{}, err
	}
	input, err := parseCalculationInput(req.WaterUnits, req.PreviousMeterReading, req.CurrentMeterReading, snapshot)
	if err != nil {
		return domain.Breakdown{}, err
	}
	return domain.Calculate(snapshot, input, s.rates()), nil
}

// CreateBilling writes exactly one pending record. Without an idempotency key
// two calls for the same room and month produce two records.
func (s *Service) CreateBilling(ctx context.Context, req domain.CreateBillingRequest) (domain.BillingRecord, error) {
	record, _, err := s.createBilling(ctx, req)
	return record, err
}

func (s *Service) createBilling(ctx context.Context, req domain.CreateBillingRequest) (domain.BillingRecord, bool, error) {
	primary, ok := req.Snapshot.Primary()
	if !ok {
		return domain.BillingRecord{}, false, domain.ErrNoOccupants
	}

	// Resolve the display name before opening the transaction so a failure
	// leaves nothing behind.
	tenant, err := s.tenantRepo.FindByID(ctx, s.db, primary.TenantID)
	if err != nil {
		return domain.BillingRecord{}, false, fmt.Errorf("%w: find tenant: %w", domain.ErrStoreUnavailable, err)
	}
	if tenant == nil {
		return domain.BillingRecord{}, false, domain.ErrTenantUnresolved
	}
	tenantName := tenant.FullName()
	if tenantName == "" {
		return domain.BillingRecord{}, false, domain.ErrTenantUnresolved
	}

	month, err := domain.NormalizeBillingMonth(req.Period)
	if err != nil {
		return domain.BillingRecord{}, false, err
	}

	cfg := s.cfg.Get()
	now := s.clock.Now()
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = clock.Today(s.clock).AddDate(0, 0, cfg.DueDays)
	}

	breakdown := req.Breakdown
	record := domain.BillingRecord{
		ID:                   s.genID.Generate(),
		RoomID:               req.Snapshot.RoomID,
		TenantID:             primary.TenantID,
		OccupancyID:          primary.OccupancyID,
		BillingMonth:         month,
		PreviousMeterReading: breakdown.PreviousMeterReading,
		CurrentMeterReading:  breakdown.CurrentMeterReading,
		RoomRent:             breakdown.RoomRent,
		WaterUnits:           breakdown.WaterUnits,
		WaterCost:            breakdown.WaterCost,
		ElectricityUnits:     breakdown.ElectricityUnits,
		ElectricityCost:      breakdown.ElectricityCost,
		Sum:                  breakdown.Total,
		Currency:             cfg.Currency,
		DueDate:              dueDate,
		Status:               domain.StatusPending,
		TenantName:           tenantName,
		OccupantCount:        breakdown.OccupantCount,
		Metadata:             buildMetadata(req),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	replayed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key != "" {
			run, err := s.repo.FindRun(ctx, tx, key)
			if err != nil {
				return err
			}
			if run != nil {
				if run.RoomID != record.RoomID || !run.BillingMonth.Equal(month) {
					return domain.ErrIdempotencyConflict
				}
				existing, err := s.repo.FindByID(ctx, tx, run.BillingID)
				if err != nil {
					return err
				}
				if existing == nil {
					return domain.ErrNotFound
				}
				record = *existing
				replayed = true
				return nil
			}
		}

		if cfg.EnforceUniquePeriod {
			count, err := s.repo.CountForPeriod(ctx, tx, record.RoomID, month)
			if err != nil {
				return err
			}
			if count > 0 {
				return domain.ErrDuplicateBilling
			}
		}

		seq, err := s.repo.NextReceiptSequence(ctx, tx, domain.ReceiptPeriod(month))
		if err != nil {
			return fmt.Errorf("allocate receipt number: %w", err)
		}
		record.ReceiptNumber = domain.FormatReceiptNumber(month, seq)

		if err := s.repo.Insert(ctx, tx, &record); err != nil {
			return err
		}

		if err := s.meterRepo.UpsertRoomMeter(ctx, tx, &meterdomain.RoomMeter{
			RoomID:    record.RoomID,
			Reading:   record.CurrentMeterReading,
			BillingID: record.ID,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("update room meter: %w", err)
		}

		if key != "" {
			if err := s.repo.InsertRun(ctx, tx, &domain.BillingRun{
				IdempotencyKey: key,
				BillingID:      record.ID,
				RoomID:         record.RoomID,
				BillingMonth:   month,
				CreatedAt:      now,
			}); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrIdempotencyConflict
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.BillingRecord{}, false, err
	}

	if !replayed {
		s.metrics.RecordBillingCreated(ctx, record.Currency, record.Sum.InexactFloat64())
		logger.WithContext(ctx, s.log).Info("billing created",
			zap.String("billing_id", record.ID.String()),
			zap.String("room_id", record.RoomID.String()),
			zap.String("receipt_number", record.ReceiptNumber),
			zap.String("sum", record.Sum.StringFixed(2)),
		)
		s.audit(ctx, auditdomain.ActionBillingCreated, record.ID, map[string]any{
			"room_id":        record.RoomID.String(),
			"billing_month":  record.BillingMonth.Format("2006-01"),
			"receipt_number": record.ReceiptNumber,
			"sum":            record.Sum.StringFixed(2),
		})
	}
	return record, replayed, nil
}

func (s *Service) RunBilling(ctx context.Context, req domain.RunBillingRequest) (domain.RunBillingResult, error) {
	log := logger.WithContext(ctx, s.log)

	if strings.TrimSpace(req.Period) == "" {
		req.Period = clock.Today(s.clock).Format("2006-01")
	}
	if _, err := domain.NormalizeBillingMonth(req.Period); err != nil {
		return domain.RunBillingResult{}, err
	}

	var dueDate time.Time
	if strings.TrimSpace(req.DueDate) != "" {
		parsed, err := domain.ParseDate(req.DueDate)
		if err != nil {
			return domain.RunBillingResult{}, err
		}
		dueDate = parsed
	}

	snapshot, err := s.aggregator.SnapshotForRoom(ctx, req.RoomID)
	if err != nil {
		return domain.RunBillingResult{}, err
	}

	input, err := parseCalculationInput(req.WaterUnits, req.PreviousMeterReading, req.CurrentMeterReading, snapshot)
	if err != nil {
		return domain.RunBillingResult{}, err
	}

	breakdown := domain.Calculate(snapshot, input, s.rates())
	warnings := []string{}
	if breakdown.MeterRegressed {
		warning := fmt.Sprintf(
			"current meter reading %s is below previous reading %s; electricity billed as 0 units",
			input.CurrentMeterReading.String(), input.PreviousMeterReading.String(),
		)
		warnings = append(warnings, warning)
		log.Warn("meter reading regressed",
			zap.String("room_id", snapshot.RoomID.String()),
			zap.String("previous", input.PreviousMeterReading.String()),
			zap.String("current", input.CurrentMeterReading.String()),
		)
	}

	record, replayed, err := s.createBilling(ctx, domain.CreateBillingRequest{
		Snapshot:       snapshot,
		Period:         req.Period,
		Breakdown:      breakdown,
		DueDate:        dueDate,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return domain.RunBillingResult{}, err
	}

	result := domain.RunBillingResult{
		Billing:   s.withEffectiveStatus(record),
		Breakdown: breakdown,
		Warnings:  warnings,
		Replayed:  replayed,
	}
	if replayed {
		log.Info("billing run replayed", zap.String("billing_id", record.ID.String()))
		return result, nil
	}

	targets := make([]meterdomain.OccupantTarget, 0, len(snapshot.Occupants))
	for _, occupant := range snapshot.Occupants {
		targets = append(targets, meterdomain.OccupantTarget{
			OccupancyID: occupant.OccupancyID,
			TenantID:    occupant.TenantID,
		})
	}
	propagation := s.propagator.Propagate(ctx, snapshot.RoomID, targets, record.CurrentMeterReading)
	result.Propagation = &propagation
	if warning := propagation.Warning(); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	return result, nil
}

func (s *Service) GetByID(ctx context.Context, rawID string) (domain.BillingRecord, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.BillingRecord{}, err
	}
	record, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.BillingRecord{}, err
	}
	if record == nil {
		return domain.BillingRecord{}, domain.ErrNotFound
	}
	return s.withEffectiveStatus(*record), nil
}

func (s *Service) List(ctx context.Context, req domain.ListBillingRequest) (domain.ListBillingResponse, error) {
	filter := domain.ListBillingFilter{Today: clock.Today(s.clock)}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.Status(strings.ToLower(status))
		if !filter.Status.Valid() {
			return domain.ListBillingResponse{}, domain.ErrInvalidStatus
		}
	}
	if strings.TrimSpace(req.RoomID) != "" {
		roomID, err := snowflake.ParseString(strings.TrimSpace(req.RoomID))
		if err != nil || roomID <= 0 {
			return domain.ListBillingResponse{}, occupancydomain.ErrInvalidRoom
		}
		filter.RoomID = roomID.Int64()
	}
	if strings.TrimSpace(req.Month) != "" {
		month, err := domain.NormalizeBillingMonth(req.Month)
		if err != nil {
			return domain.ListBillingResponse{}, err
		}
		filter.Month = &month
	}

	pageSize := option.NormalizePageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListBillingResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *domain.BillingRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: record.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	billings := make([]domain.BillingRecord, 0, len(items))
	for _, item := range items {
		if item != nil {
			billings = append(billings, s.withEffectiveStatus(*item))
		}
	}
	return domain.ListBillingResponse{PageInfo: *pageInfo, Billings: billings}, nil
}

// MarkPaid is idempotent: a record that is already paid is returned as-is
// with its original paid_date.
func (s *Service) MarkPaid(ctx context.Context, req domain.MarkPaidRequest) (domain.MarkPaidResult, error) {
	id, err := parseID(req.BillingID)
	if err != nil {
		return domain.MarkPaidResult{}, err
	}
	source := req.Source
	switch source {
	case "":
		source = domain.PaidSourceManual
	case domain.PaidSourceManual, domain.PaidSourceRedirect, domain.PaidSourceWebhook:
	default:
		return domain.MarkPaidResult{}, domain.ErrInvalidPaidSource
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = string(source)
	}

	rows, err := s.repo.MarkPaid(ctx, s.db, id, clock.Today(s.clock), method, s.clock.Now())
	if err != nil {
		return domain.MarkPaidResult{}, err
	}

	record, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.MarkPaidResult{}, err
	}
	if record == nil {
		return domain.MarkPaidResult{}, domain.ErrNotFound
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("billing_id", id.String()),
		zap.String("source", string(source)),
	)
	if rows == 0 {
		log.Info("billing already paid; mark-paid ignored")
		return domain.MarkPaidResult{Billing: *record, Transitioned: false}, nil
	}

	s.metrics.RecordBillingPaid(ctx, string(source))
	log.Info("billing marked paid", zap.String("payment_method", method))
	s.audit(ctx, auditdomain.ActionBillingPaid, id, map[string]any{
		"source":         string(source),
		"payment_method": method,
	})
	return domain.MarkPaidResult{Billing: *record, Transitioned: true}, nil
}

// MarkOverdue persists pending -> overdue for every record past its due date.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	rows, err := s.repo.MarkOverdue(ctx, s.db, clock.Today(s.clock), s.clock.Now())
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		logger.WithContext(ctx, s.log).Info("billings marked overdue", zap.Int64("rows", rows))
		s.audit(ctx, auditdomain.ActionBillingOverdueSweep, 0, map[string]any{"rows": rows})
	}
	return rows, nil
}

// audit never fails the billing operation; the audit service logs its own
// write errors.
func (s *Service) audit(ctx context.Context, action string, billingID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var targetID *string
	if billingID != 0 {
		id := billingID.String()
		targetID = &id
	}
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, auditdomain.TargetBilling, targetID, metadata)
}

func (s *Service) rates() domain.Rates {
	cfg := s.cfg.Get()
	return domain.Rates{
		WaterRate:       cfg.WaterRate,
		ElectricityRate: cfg.ElectricityRate,
	}
}

func (s *Service) withEffectiveStatus(record domain.BillingRecord) domain.BillingRecord {
	record.Status = record.EffectiveStatus(clock.Today(s.clock))
	return record
}

func parseCalculationInput(water, previous, current string, snapshot occupancydomain.RoomSnapshot) (domain.CalculationInput, error) {
	waterUnits, err := parseDecimal(water, decimal.Zero)
	if err != nil {
		return domain.CalculationInput{}, domain.ErrInvalidWaterUnits
	}
	previousReading, err := parseDecimal(previous, snapshot.LatestMeterReading)
	if err != nil {
		return domain.CalculationInput{}, domain.ErrInvalidMeterReading
	}
	if strings.TrimSpace(current) == "" {
		return domain.CalculationInput{}, domain.ErrInvalidMeterReading
	}
	currentReading, err := parseDecimal(current, decimal.Zero)
	if err != nil {
		return domain.CalculationInput{}, domain.ErrInvalidMeterReading
	}

	input := domain.CalculationInput{
		WaterUnits:           waterUnits,
		PreviousMeterReading: previousReading,
		CurrentMeterReading:  currentReading,
	}
	if err := domain.ValidateCalculationInput(input); err != nil {
		return domain.CalculationInput{}, err
	}
	return input, nil
}

func parseDecimal(value string, def decimal.Decimal) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	return decimal.NewFromString(value)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func buildMetadata(req domain.CreateBillingRequest) datatypes.JSONMap {
	names := make([]string, 0, len(req.Snapshot.Occupants))
	for _, occupant := range req.Snapshot.Occupants {
		names = append(names, occupant.TenantName)
	}
	meta := datatypes.JSONMap{
		"room_number": req.Snapshot.RoomNumber,
		"occupants":   names,
	}
	if req.Breakdown.MeterRegressed {
		meta["meter_regressed"] = true
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		meta["idempotency_key"] = key
	}
	return meta
}

