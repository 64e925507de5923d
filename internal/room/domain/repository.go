package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, room *Room) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Room, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Room, error)
	List(ctx context.Context, db *gorm.DB, filter ListRoomFilter, page pagination.Pagination) ([]*Room, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status) error
}
