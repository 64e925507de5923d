package payment

import (
	"github.com/smallbiznis/dormhub/internal/payment/adapters"
	"github.com/smallbiznis/dormhub/internal/payment/repository"
	paymentservice "github.com/smallbiznis/dormhub/internal/payment/service"
	"github.com/smallbiznis/dormhub/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(adapters.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
