package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/room/domain"
	"github.com/smallbiznis/dormhub/pkg/db"
	"github.com/smallbiznis/dormhub/pkg/db/option"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("room.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return domain.Room{}, domain.ErrInvalidNumber
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil || price.IsNegative() {
		return domain.Room{}, domain.ErrInvalidPrice
	}

	capacity := req.Capacity
	if capacity == 0 {
		capacity = 1
	}
	if capacity < 0 {
		return domain.Room{}, domain.ErrInvalidCapacity
	}

	now := s.clock.Now()
	room := domain.Room{
		ID:        s.genID.Generate(),
		Number:    number,
		Floor:     req.Floor,
		Capacity:  capacity,
		Price:     price.Round(2),
		Status:    domain.StatusVacant,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &room); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Room{}, domain.ErrDuplicateNumber
		}
		return domain.Room{}, err
	}

	s.log.Info("room created", zap.String("room_id", room.ID.String()), zap.String("number", room.Number))
	return room, nil
}

func (s *Service) GetByID(ctx context.Context, rawID string) (domain.Room, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id == 0 {
		return domain.Room{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Room{}, err
	}
	if item == nil {
		return domain.Room{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRoomRequest) (domain.ListRoomResponse, error) {
	filter := domain.ListRoomFilter{}
	if status := strings.TrimSpace(req.Status); status != "" {
		switch domain.Status(status) {
		case domain.StatusVacant, domain.StatusOccupied, domain.StatusMaintenance:
			filter.Status = domain.Status(status)
		default:
			return domain.ListRoomResponse{}, domain.ErrInvalidStatus
		}
	}

	pageSize := option.NormalizePageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListRoomResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(room *domain.Room) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: room.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	rooms := make([]domain.Room, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rooms = append(rooms, *item)
	}

	return domain.ListRoomResponse{PageInfo: *pageInfo, Rooms: rooms}, nil
}
