package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	meterdomain "github.com/smallbiznis/dormhub/internal/meterstate/domain"
	"github.com/smallbiznis/dormhub/internal/occupancy/domain"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Aggregator struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	roomRepo   roomdomain.Repository
	tenantRepo tenantdomain.Repository
	meterRepo  meterdomain.Repository
}

func NewAggregator(p Params) domain.Aggregator {
	return &Aggregator{
		db:         p.DB,
		log:        p.Log.Named("occupancy.aggregator"),
		repo:       p.Repo,
		roomRepo:   p.RoomRepo,
		tenantRepo: p.TenantRepo,
		meterRepo:  p.MeterRepo,
	}
}

// Snapshots returns one snapshot per room with at least one current
// occupant, ordered by room number. Nothing is cached between calls.
func (a *Aggregator) Snapshots(ctx context.Context) ([]domain.RoomSnapshot, error) {
	rows, err := a.repo.ListCurrent(ctx, a.db, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list current occupancies: %w", domain.ErrAggregationFailed, err)
	}
	return a.build(ctx, rows)
}

func (a *Aggregator) SnapshotForRoom(ctx context.Context, rawRoomID string) (domain.RoomSnapshot, error) {
	roomID, err := parseID(rawRoomID, domain.ErrInvalidRoom)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}

	rows, err := a.repo.ListCurrent(ctx, a.db, &roomID)
	if err != nil {
		return domain.RoomSnapshot{}, fmt.Errorf("%w: list room occupancies: %w", domain.ErrAggregationFailed, err)
	}
	if len(rows) == 0 {
		return domain.RoomSnapshot{}, domain.ErrNoCurrentOccupants
	}

	snapshots, err := a.build(ctx, rows)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return snapshots[0], nil
}

func (a *Aggregator) build(ctx context.Context, rows []domain.Occupancy) ([]domain.RoomSnapshot, error) {
	if len(rows) == 0 {
		return []domain.RoomSnapshot{}, nil
	}

	groups := map[snowflake.ID][]domain.Occupancy{}
	roomIDs := make([]snowflake.ID, 0)
	tenantIDs := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		if _, seen := groups[row.RoomID]; !seen {
			roomIDs = append(roomIDs, row.RoomID)
		}
		groups[row.RoomID] = append(groups[row.RoomID], row)
		tenantIDs = append(tenantIDs, row.TenantID)
	}

	rooms, err := a.roomRepo.FindByIDs(ctx, a.db, roomIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: load rooms: %w", domain.ErrAggregationFailed, err)
	}
	tenants, err := a.tenantRepo.FindByIDs(ctx, a.db, tenantIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: load tenants: %w", domain.ErrAggregationFailed, err)
	}
	meters, err := a.meterRepo.FindByRoomIDs(ctx, a.db, roomIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: load room meters: %w", domain.ErrAggregationFailed, err)
	}

	roomByID := make(map[snowflake.ID]roomdomain.Room, len(rooms))
	for _, room := range rooms {
		roomByID[room.ID] = room
	}
	tenantByID := make(map[snowflake.ID]tenantdomain.Tenant, len(tenants))
	for _, tenant := range tenants {
		tenantByID[tenant.ID] = tenant
	}
	meterByRoom := make(map[snowflake.ID]decimal.Decimal, len(meters))
	for _, meter := range meters {
		meterByRoom[meter.RoomID] = meter.Reading
	}

	snapshots := make([]domain.RoomSnapshot, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		group := groups[roomID]
		snapshot := domain.RoomSnapshot{
			RoomID:        roomID,
			RoomNumber:    domain.Unresolved,
			RoomPrice:     decimal.Zero,
			OccupantCount: len(group),
			Occupants:     make([]domain.Occupant, 0, len(group)),
		}
		if room, ok := roomByID[roomID]; ok {
			snapshot.RoomNumber = room.Number
			snapshot.RoomPrice = room.Price
		} else {
			a.log.Warn("occupancy references missing room", zap.String("room_id", roomID.String()))
		}

		latest := decimal.Zero
		if reading, ok := meterByRoom[roomID]; ok {
			latest = reading
		}
		for _, row := range group {
			if row.LatestMeterReading.GreaterThan(latest) {
				latest = row.LatestMeterReading
			}
			name := domain.Unresolved
			if tenant, ok := tenantByID[row.TenantID]; ok {
				if full := tenant.FullName(); full != "" {
					name = full
				}
			}
			snapshot.Occupants = append(snapshot.Occupants, domain.Occupant{
				TenantID:    row.TenantID,
				TenantName:  name,
				OccupancyID: row.ID,
			})
		}
		snapshot.LatestMeterReading = latest
		snapshots = append(snapshots, snapshot)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return naturalLess(snapshots[i].RoomNumber, snapshots[j].RoomNumber)
	})
	return snapshots, nil
}

// naturalLess orders room numbers with embedded integers by value, so "9"
// precedes "10" and "A2" precedes "A10".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := chunk(a), chunk(b)
		a, b = a[len(ca):], b[len(cb):]
		if ca == cb {
			continue
		}
		if isDigit(ca[0]) && isDigit(cb[0]) {
			ta, tb := strings.TrimLeft(ca, "0"), strings.TrimLeft(cb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			return len(ca) < len(cb)
		}
		return ca < cb
	}
	return len(a) < len(b)
}

// chunk returns the leading run of digits or non-digits.
func chunk(s string) string {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
