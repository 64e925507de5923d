package occupancy

import (
	"github.com/smallbiznis/dormhub/internal/occupancy/repository"
	"github.com/smallbiznis/dormhub/internal/occupancy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("occupancy.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewAggregator),
)
