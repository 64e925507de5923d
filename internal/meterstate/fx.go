package meterstate

import (
	"github.com/smallbiznis/dormhub/internal/meterstate/repository"
	"github.com/smallbiznis/dormhub/internal/meterstate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meterstate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewPropagator),
	fx.Provide(service.NewReconciler),
)
