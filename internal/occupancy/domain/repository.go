package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, occupancy *Occupancy) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Occupancy, error)
	// ListCurrent returns current rows in aggregation order, optionally for one room.
	ListCurrent(ctx context.Context, db *gorm.DB, roomID *snowflake.ID) ([]Occupancy, error)
	CountCurrentByRoom(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (int64, error)
	FindCurrentByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Occupancy, error)
	CheckOut(ctx context.Context, db *gorm.DB, id snowflake.ID, checkOutDate, at time.Time) (int64, error)
}
