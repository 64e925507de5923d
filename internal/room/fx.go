package room

import (
	"github.com/smallbiznis/dormhub/internal/room/repository"
	"github.com/smallbiznis/dormhub/internal/room/service"
	"go.uber.org/fx"
)

var Module = fx.Module("room.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
