package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *BillingRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingRecord, error)
	List(ctx context.Context, db *gorm.DB, filter ListBillingFilter, page pagination.Pagination) ([]*BillingRecord, error)
	CountForPeriod(ctx context.Context, db *gorm.DB, roomID snowflake.ID, month time.Time) (int64, error)
	// MarkPaid only touches records that are not paid yet and reports rows changed.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidDate time.Time, method string, at time.Time) (int64, error)
	MarkOverdue(ctx context.Context, db *gorm.DB, today, at time.Time) (int64, error)

	NextReceiptSequence(ctx context.Context, db *gorm.DB, period string) (int64, error)
	FindRun(ctx context.Context, db *gorm.DB, key string) (*BillingRun, error)
	InsertRun(ctx context.Context, db *gorm.DB, run *BillingRun) error
}
