package seed

import (
	"context"
	"fmt"

	"github.com/smallbiznis/dormhub/internal/config"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module seeds demo rooms and tenants on start when SEED_DEMO_DATA is set.
var Module = fx.Module("seed",
	fx.Invoke(register),
)

type demoRoom struct {
	Number   string
	Floor    int
	Capacity int
	Price    string
}

type demoTenant struct {
	FirstName string
	LastName  string
	Email     string
	Room      string
}

var demoRooms = []demoRoom{
	{Number: "A101", Floor: 1, Capacity: 2, Price: "3500"},
	{Number: "A102", Floor: 1, Capacity: 1, Price: "2800"},
	{Number: "B201", Floor: 2, Capacity: 2, Price: "4200"},
}

var demoTenants = []demoTenant{
	{FirstName: "Ana", LastName: "Lee", Email: "ana.lee@example.com", Room: "A101"},
	{FirstName: "Ben", LastName: "Ortiz", Email: "ben.ortiz@example.com", Room: "A101"},
	{FirstName: "Chai", LastName: "Wong", Email: "chai.wong@example.com", Room: "A102"},
}

type Params struct {
	fx.In

	Cfg          config.Config
	Log          *zap.Logger
	RoomSvc      roomdomain.Service
	TenantSvc    tenantdomain.Service
	OccupancySvc occupancydomain.Service
}

func register(lc fx.Lifecycle, p Params) {
	if !p.Cfg.SeedDemoData {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return EnsureDemoData(ctx, p)
		},
	})
}

// EnsureDemoData creates the demo rooms, tenants and check-ins. It does
// nothing when any room already exists.
func EnsureDemoData(ctx context.Context, p Params) error {
	log := p.Log.Named("seed")

	existing, err := p.RoomSvc.List(ctx, roomdomain.ListRoomRequest{PageSize: 1})
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if len(existing.Rooms) > 0 {
		log.Info("demo data skipped, rooms already exist")
		return nil
	}

	roomIDs := make(map[string]string, len(demoRooms))
	for _, r := range demoRooms {
		room, err := p.RoomSvc.Create(ctx, roomdomain.CreateRoomRequest{
			Number:   r.Number,
			Floor:    r.Floor,
			Capacity: r.Capacity,
			Price:    r.Price,
		})
		if err != nil {
			return fmt.Errorf("create room %s: %w", r.Number, err)
		}
		roomIDs[r.Number] = room.ID.String()
	}

	for _, t := range demoTenants {
		tenant, err := p.TenantSvc.Create(ctx, tenantdomain.CreateTenantRequest{
			FirstName: t.FirstName,
			LastName:  t.LastName,
			Email:     t.Email,
		})
		if err != nil {
			return fmt.Errorf("create tenant %s: %w", t.Email, err)
		}
		if _, err := p.OccupancySvc.CheckIn(ctx, occupancydomain.CheckInRequest{
			RoomID:   roomIDs[t.Room],
			TenantID: tenant.ID.String(),
		}); err != nil {
			return fmt.Errorf("check in %s: %w", t.Email, err)
		}
	}

	log.Info("demo data seeded",
		zap.Int("rooms", len(demoRooms)),
		zap.Int("tenants", len(demoTenants)),
	)
	return nil
}
