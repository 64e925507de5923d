package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRooms struct {
	roomdomain.Service
	node    *snowflake.Node
	created []roomdomain.CreateRoomRequest
	rooms   []roomdomain.Room
}

func (f *fakeRooms) List(ctx context.Context, req roomdomain.ListRoomRequest) (roomdomain.ListRoomResponse, error) {
	return roomdomain.ListRoomResponse{Rooms: f.rooms}, nil
}

func (f *fakeRooms) Create(ctx context.Context, req roomdomain.CreateRoomRequest) (roomdomain.Room, error) {
	f.created = append(f.created, req)
	room := roomdomain.Room{ID: f.node.Generate(), Number: req.Number}
	f.rooms = append(f.rooms, room)
	return room, nil
}

type fakeTenants struct {
	tenantdomain.Service
	node    *snowflake.Node
	created []string
	err     error
}

func (f *fakeTenants) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (tenantdomain.Tenant, error) {
	if f.err != nil {
		return tenantdomain.Tenant{}, f.err
	}
	f.created = append(f.created, req.Email)
	return tenantdomain.Tenant{ID: f.node.Generate()}, nil
}

type fakeOccupancies struct {
	occupancydomain.Service
	checkIns []occupancydomain.CheckInRequest
}

func (f *fakeOccupancies) CheckIn(ctx context.Context, req occupancydomain.CheckInRequest) (occupancydomain.Occupancy, error) {
	f.checkIns = append(f.checkIns, req)
	return occupancydomain.Occupancy{}, nil
}

func newParams(t *testing.T) (Params, *fakeRooms, *fakeTenants, *fakeOccupancies) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	rooms := &fakeRooms{node: node}
	tenants := &fakeTenants{node: node}
	occupancies := &fakeOccupancies{}
	return Params{
		Log:          zap.NewNop(),
		RoomSvc:      rooms,
		TenantSvc:    tenants,
		OccupancySvc: occupancies,
	}, rooms, tenants, occupancies
}

func TestEnsureDemoData(t *testing.T) {
	p, rooms, tenants, occupancies := newParams(t)

	require.NoError(t, EnsureDemoData(context.Background(), p))
	assert.Len(t, rooms.created, len(demoRooms))
	assert.Len(t, tenants.created, len(demoTenants))
	require.Len(t, occupancies.checkIns, len(demoTenants))

	a101 := rooms.rooms[0].ID.String()
	assert.Equal(t, a101, occupancies.checkIns[0].RoomID)
	assert.Equal(t, a101, occupancies.checkIns[1].RoomID)
	assert.Empty(t, occupancies.checkIns[0].CheckInDate)

	require.NoError(t, EnsureDemoData(context.Background(), p))
	assert.Len(t, rooms.created, len(demoRooms), "second run must not create rooms")
}

func TestEnsureDemoData_StopsOnError(t *testing.T) {
	p, _, tenants, occupancies := newParams(t)
	tenants.err = tenantdomain.ErrInvalidEmail

	err := EnsureDemoData(context.Background(), p)
	assert.True(t, errors.Is(err, tenantdomain.ErrInvalidEmail))
	assert.Empty(t, occupancies.checkIns)
}
