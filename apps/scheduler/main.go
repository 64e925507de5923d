package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/internal/audit"
	"github.com/smallbiznis/dormhub/internal/billing"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/config"
	"github.com/smallbiznis/dormhub/internal/meterstate"
	"github.com/smallbiznis/dormhub/internal/observability"
	"github.com/smallbiznis/dormhub/internal/occupancy"
	"github.com/smallbiznis/dormhub/internal/ratelimit"
	"github.com/smallbiznis/dormhub/internal/room"
	"github.com/smallbiznis/dormhub/internal/scheduler"
	"github.com/smallbiznis/dormhub/internal/tenant"
	"github.com/smallbiznis/dormhub/pkg/db"
	"go.uber.org/fx"
)

// Runs the overdue and meter reconciliation sweeps without the HTTP server.
// Replicas share the redis lock when REDIS_ADDR is set.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		room.Module,
		tenant.Module,
		occupancy.Module,
		meterstate.Module,
		billing.Module,
		audit.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
