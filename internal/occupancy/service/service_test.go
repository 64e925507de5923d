package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dormhub/internal/clock"
	meterdomain "github.com/smallbiznis/dormhub/internal/meterstate/domain"
	meterrepo "github.com/smallbiznis/dormhub/internal/meterstate/repository"
	"github.com/smallbiznis/dormhub/internal/occupancy/domain"
	"github.com/smallbiznis/dormhub/internal/occupancy/repository"
	"github.com/smallbiznis/dormhub/internal/occupancy/service"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	roomrepo "github.com/smallbiznis/dormhub/internal/room/repository"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/dormhub/internal/tenant/repository"
	"github.com/smallbiznis/dormhub/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	svc        domain.Service
	aggregator domain.Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	params := service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(testNow),
		Repo:       repository.Provide(),
		RoomRepo:   roomrepo.Provide(),
		TenantRepo: tenantrepo.Provide(),
		MeterRepo:  meterrepo.Provide(),
	}
	return &fixture{
		db:         db,
		node:       node,
		svc:        service.New(params),
		aggregator: service.NewAggregator(params),
	}
}

func (f *fixture) room(t *testing.T, number string, capacity int, status roomdomain.Status) roomdomain.Room {
	t.Helper()
	room := roomdomain.Room{
		ID:        f.node.Generate(),
		Number:    number,
		Capacity:  capacity,
		Price:     decimal.NewFromInt(3500),
		Status:    status,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, f.db.Create(&room).Error)
	return room
}

func (f *fixture) tenant(t *testing.T, first, last string) tenantdomain.Tenant {
	t.Helper()
	tenant := tenantdomain.Tenant{
		ID:        f.node.Generate(),
		FirstName: first,
		LastName:  last,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, f.db.Create(&tenant).Error)
	return tenant
}

func (f *fixture) checkIn(t *testing.T, room roomdomain.Room, tenant tenantdomain.Tenant, date string) domain.Occupancy {
	t.Helper()
	occupancy, err := f.svc.CheckIn(context.Background(), domain.CheckInRequest{
		RoomID:      room.ID.String(),
		TenantID:    tenant.ID.String(),
		CheckInDate: date,
	})
	require.NoError(t, err)
	return occupancy
}

func (f *fixture) roomStatus(t *testing.T, id snowflake.ID) roomdomain.Status {
	t.Helper()
	var room roomdomain.Room
	require.NoError(t, f.db.Where("id = ?", id).First(&room).Error)
	return room.Status
}

func TestCheckIn_MarksRoomOccupiedAndSeedsMeter(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, "A101", 2, roomdomain.StatusVacant)
	require.NoError(t, f.db.Create(&meterdomain.RoomMeter{
		RoomID:    room.ID,
		Reading:   decimal.NewFromInt(150),
		UpdatedAt: testNow,
	}).Error)

	occupancy := f.checkIn(t, room, f.tenant(t, "Ana", "Lee"), "")

	assert.True(t, occupancy.IsCurrent)
	assert.Equal(t, time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC), occupancy.CheckInDate)
	assert.True(t, occupancy.LatestMeterReading.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, roomdomain.StatusOccupied, f.roomStatus(t, room.ID))
}

func TestCheckIn_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "A101", 1, roomdomain.StatusVacant)
	repair := f.room(t, "B201", 2, roomdomain.StatusMaintenance)
	ana := f.tenant(t, "Ana", "Lee")
	bo := f.tenant(t, "Bo", "Chen")

	f.checkIn(t, room, ana, "2026-10-01")

	tests := []struct {
		name string
		req  domain.CheckInRequest
		err  error
	}{
		{"room full", domain.CheckInRequest{RoomID: room.ID.String(), TenantID: bo.ID.String()}, domain.ErrRoomFull},
		{"room under maintenance", domain.CheckInRequest{RoomID: repair.ID.String(), TenantID: ana.ID.String()}, domain.ErrRoomUnavailable},
		{"unknown room", domain.CheckInRequest{RoomID: f.node.Generate().String(), TenantID: bo.ID.String()}, domain.ErrRoomNotFound},
		{"unknown tenant", domain.CheckInRequest{RoomID: room.ID.String(), TenantID: f.node.Generate().String()}, domain.ErrTenantNotFound},
		{"bad room id", domain.CheckInRequest{RoomID: "abc", TenantID: bo.ID.String()}, domain.ErrInvalidRoom},
		{"bad date", domain.CheckInRequest{RoomID: room.ID.String(), TenantID: bo.ID.String(), CheckInDate: "01/10/2026"}, domain.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CheckIn(ctx, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	second := f.room(t, "A102", 2, roomdomain.StatusVacant)
	_, err := f.svc.CheckIn(ctx, domain.CheckInRequest{RoomID: second.ID.String(), TenantID: ana.ID.String()})
	assert.ErrorIs(t, err, domain.ErrTenantAlreadyHoused)
}

func TestCheckOut_VacatesRoomWhenLastOccupantLeaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "A101", 2, roomdomain.StatusVacant)
	first := f.checkIn(t, room, f.tenant(t, "Ana", "Lee"), "2026-10-01")
	second := f.checkIn(t, room, f.tenant(t, "Bo", "Chen"), "2026-10-02")

	out, err := f.svc.CheckOut(ctx, domain.CheckOutRequest{OccupancyID: first.ID.String(), CheckOutDate: "2026-10-10"})
	require.NoError(t, err)
	assert.False(t, out.IsCurrent)
	require.NotNil(t, out.CheckOutDate)
	assert.Equal(t, roomdomain.StatusOccupied, f.roomStatus(t, room.ID))

	_, err = f.svc.CheckOut(ctx, domain.CheckOutRequest{OccupancyID: first.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyCheckedOut)

	_, err = f.svc.CheckOut(ctx, domain.CheckOutRequest{OccupancyID: second.ID.String(), CheckOutDate: "2026-09-01"})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = f.svc.CheckOut(ctx, domain.CheckOutRequest{OccupancyID: second.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, roomdomain.StatusVacant, f.roomStatus(t, room.ID))
}

func TestSnapshots_GroupsCurrentOccupantsPerRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.room(t, "B201", 3, roomdomain.StatusVacant)
	a := f.room(t, "A101", 2, roomdomain.StatusVacant)
	f.room(t, "C301", 2, roomdomain.StatusVacant)

	bo := f.tenant(t, "Bo", "Chen")
	ana := f.tenant(t, "Ana", "Lee")
	f.checkIn(t, a, bo, "2026-10-05")
	f.checkIn(t, a, ana, "2026-10-01")
	gone := f.checkIn(t, b, f.tenant(t, "Cy", "Ng"), "2026-10-01")
	f.checkIn(t, b, f.tenant(t, "Di", ""), "2026-10-03")
	_, err := f.svc.CheckOut(ctx, domain.CheckOutRequest{OccupancyID: gone.ID.String()})
	require.NoError(t, err)

	snapshots, err := f.aggregator.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	assert.Equal(t, "A101", snapshots[0].RoomNumber)
	assert.Equal(t, 2, snapshots[0].OccupantCount)
	assert.Equal(t, "Ana Lee", snapshots[0].Occupants[0].TenantName)
	assert.Equal(t, "Bo Chen", snapshots[0].Occupants[1].TenantName)
	assert.True(t, snapshots[0].RoomPrice.Equal(decimal.NewFromInt(3500)))

	assert.Equal(t, "B201", snapshots[1].RoomNumber)
	assert.Equal(t, 1, snapshots[1].OccupantCount)
	assert.Equal(t, "Di", snapshots[1].Occupants[0].TenantName)
}

func TestSnapshotForRoom_ResolvesMissingRowsAndMeter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.room(t, "A101", 2, roomdomain.StatusVacant)
	tenant := f.tenant(t, "Ana", "Lee")
	occupancy := f.checkIn(t, room, tenant, "2026-10-01")

	require.NoError(t, f.db.Model(&domain.Occupancy{}).Where("id = ?", occupancy.ID).
		Update("latest_meter_reading", decimal.NewFromInt(120)).Error)
	require.NoError(t, f.db.Exec("DELETE FROM tenants WHERE id = ?", tenant.ID).Error)

	snapshot, err := f.aggregator.SnapshotForRoom(ctx, room.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.Unresolved, snapshot.Occupants[0].TenantName)
	assert.True(t, snapshot.LatestMeterReading.Equal(decimal.NewFromInt(120)))

	empty := f.room(t, "A102", 2, roomdomain.StatusVacant)
	_, err = f.aggregator.SnapshotForRoom(ctx, empty.ID.String())
	assert.ErrorIs(t, err, domain.ErrNoCurrentOccupants)

	_, err = f.aggregator.SnapshotForRoom(ctx, "room-1")
	assert.ErrorIs(t, err, domain.ErrInvalidRoom)
}

func TestSnapshots_OrdersRoomNumbersNaturally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, number := range []string{"10", "A10", "9", "A2", "B1"} {
		room := f.room(t, number, 1, roomdomain.StatusVacant)
		f.checkIn(t, room, f.tenant(t, fmt.Sprintf("T%d", i), "Lee"), "2026-10-01")
	}

	snapshots, err := f.aggregator.Snapshots(ctx)
	require.NoError(t, err)

	var numbers []string
	for _, snapshot := range snapshots {
		numbers = append(numbers, snapshot.RoomNumber)
	}
	assert.Equal(t, []string{"9", "10", "A2", "A10", "B1"}, numbers)
}
