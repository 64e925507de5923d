package adapters

import (
	"strings"

	"github.com/smallbiznis/dormhub/internal/config"
	"github.com/smallbiznis/dormhub/internal/payment/adapters/midtrans"
	"github.com/smallbiznis/dormhub/internal/payment/adapters/stripe"
	"github.com/smallbiznis/dormhub/internal/payment/domain"
	"go.uber.org/zap"
)

type Registry struct {
	gateways        map[string]domain.Gateway
	defaultProvider string
}

func NewRegistry(defaultProvider string, gateways ...domain.Gateway) *Registry {
	registry := &Registry{
		gateways:        map[string]domain.Gateway{},
		defaultProvider: normalize(defaultProvider),
	}
	for _, gateway := range gateways {
		if gateway == nil {
			continue
		}
		provider := normalize(gateway.Provider())
		if provider == "" {
			continue
		}
		registry.gateways[provider] = gateway
	}
	return registry
}

// Provide builds a gateway for every provider that has credentials configured.
func Provide(cfg config.Config, log *zap.Logger) (*Registry, error) {
	log = log.Named("payment.adapters")
	payment := cfg.Payment

	candidates := []struct {
		factory domain.GatewayFactory
		config  domain.GatewayConfig
		enabled bool
	}{
		{
			factory: stripe.NewFactory(),
			config: domain.GatewayConfig{
				SecretKey:     payment.StripeSecretKey,
				WebhookSecret: payment.StripeWebhookSecret,
				APIBase:       payment.StripeAPIBase,
				Timeout:       payment.HTTPTimeout,
			},
			enabled: payment.StripeSecretKey != "",
		},
		{
			factory: midtrans.NewFactory(),
			config: domain.GatewayConfig{
				SecretKey:  payment.MidtransServerKey,
				Production: payment.MidtransProduction,
				Timeout:    payment.HTTPTimeout,
			},
			enabled: payment.MidtransServerKey != "",
		},
	}

	gateways := []domain.Gateway{}
	for _, candidate := range candidates {
		if !candidate.enabled {
			continue
		}
		gateway, err := candidate.factory.NewGateway(candidate.config)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gateway)
		log.Info("payment gateway enabled", zap.String("provider", gateway.Provider()))
	}
	if len(gateways) == 0 {
		log.Warn("no payment gateway configured; checkout is disabled")
	}
	return NewRegistry(payment.DefaultProvider, gateways...), nil
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.gateways[normalize(provider)]
	return ok
}

// Get returns the named gateway, or the default one when provider is empty.
func (r *Registry) Get(provider string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	if provider == "" {
		provider = r.defaultProvider
	}
	gateway, ok := r.gateways[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return gateway, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
