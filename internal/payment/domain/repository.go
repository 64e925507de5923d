package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertSession(ctx context.Context, db *gorm.DB, session *CheckoutSession) error
	FindSessionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CheckoutSession, error)
	FindSessionByProviderID(ctx context.Context, db *gorm.DB, provider string, providerSessionID string) (*CheckoutSession, error)
	FindLatestSessionForBilling(ctx context.Context, db *gorm.DB, billingID snowflake.ID) (*CheckoutSession, error)
	UpdateSessionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SessionStatus, at time.Time) error

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
