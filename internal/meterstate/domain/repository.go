package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	UpdateOccupantReading(ctx context.Context, db *gorm.DB, occupancyID snowflake.ID, reading decimal.Decimal, at time.Time) error
	UpsertRoomMeter(ctx context.Context, db *gorm.DB, meter *RoomMeter) error
	FindByRoomID(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (*RoomMeter, error)
	FindByRoomIDs(ctx context.Context, db *gorm.DB, roomIDs []snowflake.ID) ([]RoomMeter, error)
	ReconcileOccupants(ctx context.Context, db *gorm.DB, at time.Time) (int64, error)
}
