package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/internal/room/domain"
	"github.com/smallbiznis/dormhub/pkg/db/option"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, room *domain.Room) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rooms (id, number, floor, capacity, price, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID,
		room.Number,
		room.Floor,
		room.Capacity,
		room.Price,
		room.Status,
		room.CreatedAt,
		room.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Room, error) {
	var room domain.Room
	err := db.WithContext(ctx).Raw(
		`SELECT id, number, floor, capacity, price, status, created_at, updated_at
		 FROM rooms WHERE id = ?`,
		id,
	).Scan(&room).Error
	if err != nil {
		return nil, err
	}
	if room.ID == 0 {
		return nil, nil
	}
	return &room, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Room, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rooms []domain.Room
	err := db.WithContext(ctx).Raw(
		`SELECT id, number, floor, capacity, price, status, created_at, updated_at
		 FROM rooms WHERE id IN ?`,
		ids,
	).Scan(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRoomFilter, page pagination.Pagination) ([]*domain.Room, error) {
	var rooms []*domain.Room
	stmt := db.WithContext(ctx).Model(&domain.Room{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status) error {
	return db.WithContext(ctx).Exec(
		`UPDATE rooms SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status,
		id,
	).Error
}
