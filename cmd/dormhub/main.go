package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/config"
	"github.com/smallbiznis/dormhub/internal/migration"
	"github.com/smallbiznis/dormhub/internal/observability"
	"github.com/smallbiznis/dormhub/internal/scheduler"
	"github.com/smallbiznis/dormhub/internal/seed"
	"github.com/smallbiznis/dormhub/internal/server"
	"github.com/smallbiznis/dormhub/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface plus every domain module
		server.Module,

		// Background sweeps
		scheduler.Module,
		seed.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
