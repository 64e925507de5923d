package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dormhub/internal/meterstate/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpdateOccupantReading(ctx context.Context, db *gorm.DB, occupancyID snowflake.ID, reading decimal.Decimal, at time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE occupancies SET latest_meter_reading = ?, updated_at = ? WHERE id = ?`,
		reading,
		at,
		occupancyID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrOccupancyNotFound
	}
	return nil
}

func (r *repo) UpsertRoomMeter(ctx context.Context, db *gorm.DB, meter *domain.RoomMeter) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reading", "billing_id", "updated_at"}),
	}).Create(meter).Error
}

func (r *repo) FindByRoomID(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (*domain.RoomMeter, error) {
	var meter domain.RoomMeter
	err := db.WithContext(ctx).Raw(
		`SELECT room_id, reading, billing_id, updated_at FROM room_meters WHERE room_id = ?`,
		roomID,
	).Scan(&meter).Error
	if err != nil {
		return nil, err
	}
	if meter.RoomID == 0 {
		return nil, nil
	}
	return &meter, nil
}

func (r *repo) FindByRoomIDs(ctx context.Context, db *gorm.DB, roomIDs []snowflake.ID) ([]domain.RoomMeter, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	var meters []domain.RoomMeter
	err := db.WithContext(ctx).Raw(
		`SELECT room_id, reading, billing_id, updated_at FROM room_meters WHERE room_id IN ?`,
		roomIDs,
	).Scan(&meters).Error
	if err != nil {
		return nil, err
	}
	return meters, nil
}

func (r *repo) ReconcileOccupants(ctx context.Context, db *gorm.DB, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE occupancies
		 SET latest_meter_reading = (
		     SELECT rm.reading FROM room_meters rm WHERE rm.room_id = occupancies.room_id
		 ),
		 updated_at = ?
		 WHERE is_current = ?
		   AND EXISTS (
		     SELECT 1 FROM room_meters rm
		     WHERE rm.room_id = occupancies.room_id
		       AND rm.reading <> occupancies.latest_meter_reading
		   )`,
		at,
		true,
	)
	return result.RowsAffected, result.Error
}
