package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/pkg/db/option"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.BillingRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingRecord, error) {
	var record domain.BillingRecord
	err := db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Where("id = ?", id).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListBillingFilter, page pagination.Pagination) ([]*domain.BillingRecord, error) {
	var records []*domain.BillingRecord
	stmt := db.WithContext(ctx).Model(&domain.BillingRecord{})
	if filter.RoomID != 0 {
		stmt = stmt.Where("room_id = ?", filter.RoomID)
	}
	if filter.Month != nil {
		stmt = stmt.Where("billing_month = ?", *filter.Month)
	}
	switch filter.Status {
	case domain.StatusPaid:
		stmt = stmt.Where("status = ?", domain.StatusPaid)
	case domain.StatusPending:
		stmt = stmt.Where("status = ? AND due_date >= ?", domain.StatusPending, filter.Today)
	case domain.StatusOverdue:
		stmt = stmt.Where("(status = ? OR (status = ? AND due_date < ?))",
			domain.StatusOverdue, domain.StatusPending, filter.Today)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) CountForPeriod(ctx context.Context, db *gorm.DB, roomID snowflake.ID, month time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM billings WHERE room_id = ? AND billing_month = ?`,
		roomID,
		month,
	).Scan(&count).Error
	return count, err
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidDate time.Time, method string, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE billings
		 SET status = ?, paid_date = ?, payment_method = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.StatusPaid,
		paidDate,
		method,
		at,
		id,
		domain.StatusPaid,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, today, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE billings SET status = ?, updated_at = ? WHERE status = ? AND due_date < ?`,
		domain.StatusOverdue,
		at,
		domain.StatusPending,
		today,
	)
	return result.RowsAffected, result.Error
}

// NextReceiptSequence increments the period counter with an upsert. The row
// lock it takes serializes concurrent allocations until the caller commits.
func (r *repo) NextReceiptSequence(ctx context.Context, db *gorm.DB, period string) (int64, error) {
	seq := domain.ReceiptSequence{Period: period, LastValue: 1}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_value": gorm.Expr("receipt_sequences.last_value + 1"),
		}),
	}).Create(&seq).Error
	if err != nil {
		return 0, err
	}

	var value int64
	err = db.WithContext(ctx).Raw(
		`SELECT last_value FROM receipt_sequences WHERE period = ?`,
		period,
	).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (r *repo) FindRun(ctx context.Context, db *gorm.DB, key string) (*domain.BillingRun, error) {
	var run domain.BillingRun
	err := db.WithContext(ctx).Raw(
		`SELECT idempotency_key, billing_id, room_id, billing_month, created_at
		 FROM billing_runs WHERE idempotency_key = ?`,
		key,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.IdempotencyKey == "" {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *domain.BillingRun) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_runs (idempotency_key, billing_id, room_id, billing_month, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.IdempotencyKey,
		run.BillingID,
		run.RoomID,
		run.BillingMonth,
		run.CreatedAt,
	).Error
}
