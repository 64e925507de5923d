package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dormhub/internal/clock"
	meterdomain "github.com/smallbiznis/dormhub/internal/meterstate/domain"
	"github.com/smallbiznis/dormhub/internal/occupancy/domain"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	"github.com/smallbiznis/dormhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	RoomRepo   roomdomain.Repository
	TenantRepo tenantdomain.Repository
	MeterRepo  meterdomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	roomRepo   roomdomain.Repository
	tenantRepo tenantdomain.Repository
	meterRepo  meterdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("occupancy.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		roomRepo:   p.RoomRepo,
		tenantRepo: p.TenantRepo,
		meterRepo:  p.MeterRepo,
	}
}

func (s *Service) CheckIn(ctx context.Context, req domain.CheckInRequest) (domain.Occupancy, error) {
	roomID, err := parseID(req.RoomID, domain.ErrInvalidRoom)
	if err != nil {
		return domain.Occupancy{}, err
	}
	tenantID, err := parseID(req.TenantID, domain.ErrInvalidTenant)
	if err != nil {
		return domain.Occupancy{}, err
	}
	checkIn, err := s.parseDate(req.CheckInDate)
	if err != nil {
		return domain.Occupancy{}, err
	}

	now := s.clock.Now()
	occupancy := domain.Occupancy{
		ID:          s.genID.Generate(),
		RoomID:      roomID,
		TenantID:    tenantID,
		CheckInDate: checkIn,
		IsCurrent:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := s.roomRepo.FindByID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room == nil {
			return domain.ErrRoomNotFound
		}
		if room.Status == roomdomain.StatusMaintenance {
			return domain.ErrRoomUnavailable
		}

		tenant, err := s.tenantRepo.FindByID(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return domain.ErrTenantNotFound
		}

		current, err := s.repo.FindCurrentByTenant(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if current != nil {
			return domain.ErrTenantAlreadyHoused
		}

		count, err := s.repo.CountCurrentByRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.Capacity > 0 && count >= int64(room.Capacity) {
			return domain.ErrRoomFull
		}

		// New occupants start from the room's authoritative reading.
		occupancy.LatestMeterReading = decimal.Zero
		meter, err := s.meterRepo.FindByRoomID(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if meter != nil {
			occupancy.LatestMeterReading = meter.Reading
		}

		if err := s.repo.Insert(ctx, tx, &occupancy); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrTenantAlreadyHoused
			}
			return err
		}
		return s.roomRepo.UpdateStatus(ctx, tx, roomID, roomdomain.StatusOccupied)
	})
	if err != nil {
		return domain.Occupancy{}, err
	}

	s.log.Info("tenant checked in",
		zap.String("occupancy_id", occupancy.ID.String()),
		zap.String("room_id", roomID.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	return occupancy, nil
}

func (s *Service) CheckOut(ctx context.Context, req domain.CheckOutRequest) (domain.Occupancy, error) {
	id, err := parseID(req.OccupancyID, domain.ErrInvalidID)
	if err != nil {
		return domain.Occupancy{}, err
	}
	checkOut, err := s.parseDate(req.CheckOutDate)
	if err != nil {
		return domain.Occupancy{}, err
	}

	var updated *domain.Occupancy
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if !item.IsCurrent {
			return domain.ErrAlreadyCheckedOut
		}
		if checkOut.Before(item.CheckInDate) {
			return domain.ErrInvalidDate
		}

		rows, err := s.repo.CheckOut(ctx, tx, id, checkOut, s.clock.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrAlreadyCheckedOut
		}

		remaining, err := s.repo.CountCurrentByRoom(ctx, tx, item.RoomID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			room, err := s.roomRepo.FindByID(ctx, tx, item.RoomID)
			if err != nil {
				return err
			}
			if room != nil && room.Status == roomdomain.StatusOccupied {
				if err := s.roomRepo.UpdateStatus(ctx, tx, item.RoomID, roomdomain.StatusVacant); err != nil {
					return err
				}
			}
		}

		updated, err = s.repo.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Occupancy{}, err
	}
	if updated == nil {
		return domain.Occupancy{}, domain.ErrNotFound
	}
	return *updated, nil
}

func (s *Service) GetByID(ctx context.Context, rawID string) (domain.Occupancy, error) {
	id, err := parseID(rawID, domain.ErrInvalidID)
	if err != nil {
		return domain.Occupancy{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Occupancy{}, err
	}
	if item == nil {
		return domain.Occupancy{}, domain.ErrNotFound
	}
	return *item, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339 and defaults to today.
func (s *Service) parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return clock.Today(s.clock), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.ErrInvalidDate
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return id, nil
}
