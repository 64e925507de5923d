package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/internal/occupancy/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const occupancyColumns = `id, room_id, tenant_id, check_in_date, check_out_date, is_current,
	latest_meter_reading, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, occupancy *domain.Occupancy) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO occupancies (`+occupancyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		occupancy.ID,
		occupancy.RoomID,
		occupancy.TenantID,
		occupancy.CheckInDate,
		occupancy.CheckOutDate,
		occupancy.IsCurrent,
		occupancy.LatestMeterReading,
		occupancy.CreatedAt,
		occupancy.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Occupancy, error) {
	var occupancy domain.Occupancy
	err := db.WithContext(ctx).Raw(
		`SELECT `+occupancyColumns+` FROM occupancies WHERE id = ?`,
		id,
	).Scan(&occupancy).Error
	if err != nil {
		return nil, err
	}
	if occupancy.ID == 0 {
		return nil, nil
	}
	return &occupancy, nil
}

func (r *repo) ListCurrent(ctx context.Context, db *gorm.DB, roomID *snowflake.ID) ([]domain.Occupancy, error) {
	stmt := db.WithContext(ctx).Model(&domain.Occupancy{}).Where("is_current = ?", true)
	if roomID != nil {
		stmt = stmt.Where("room_id = ?", *roomID)
	}

	var items []domain.Occupancy
	if err := stmt.Order("check_in_date asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountCurrentByRoom(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM occupancies WHERE room_id = ? AND is_current = ?`,
		roomID,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) FindCurrentByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Occupancy, error) {
	var occupancy domain.Occupancy
	err := db.WithContext(ctx).Raw(
		`SELECT `+occupancyColumns+` FROM occupancies WHERE tenant_id = ? AND is_current = ?`,
		tenantID,
		true,
	).Scan(&occupancy).Error
	if err != nil {
		return nil, err
	}
	if occupancy.ID == 0 {
		return nil, nil
	}
	return &occupancy, nil
}

func (r *repo) CheckOut(ctx context.Context, db *gorm.DB, id snowflake.ID, checkOutDate, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE occupancies
		 SET is_current = ?, check_out_date = ?, updated_at = ?
		 WHERE id = ? AND is_current = ?`,
		false,
		checkOutDate,
		at,
		id,
		true,
	)
	return result.RowsAffected, result.Error
}
