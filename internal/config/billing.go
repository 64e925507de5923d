package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig carries the tariff applied by billing runs. It is hot-reloaded
// from billing.yml.
type BillingConfig struct {
	WaterRate              decimal.Decimal `mapstructure:"-"`
	ElectricityRate        decimal.Decimal `mapstructure:"-"`
	Currency               string          `mapstructure:"currency"`
	DueDays                int             `mapstructure:"dueDays"`
	EnforceUniquePeriod    bool            `mapstructure:"enforceUniquePeriod"`
	PropagationConcurrency int             `mapstructure:"propagationConcurrency"`
}

func DefaultBillingConfig(d BillingDefaults) BillingConfig {
	return BillingConfig{
		WaterRate:              parseRate(d.WaterRate, decimal.NewFromInt(18)),
		ElectricityRate:        parseRate(d.ElectricityRate, decimal.NewFromInt(8)),
		Currency:               d.Currency,
		DueDays:                d.DueDays,
		EnforceUniquePeriod:    d.EnforceUniquePeriod,
		PropagationConcurrency: 4,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder pins a config without watching any file.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(cfg Config, log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	defaults := DefaultBillingConfig(cfg.Billing)

	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/dormhub/config")
	v.AddConfigPath("/etc/dormhub")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DORMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("billing.waterRate", defaults.WaterRate.String())
	v.SetDefault("billing.electricityRate", defaults.ElectricityRate.String())
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.dueDays", defaults.DueDays)
	v.SetDefault("billing.enforceUniquePeriod", defaults.EnforceUniquePeriod)
	v.SetDefault("billing.propagationConcurrency", defaults.PropagationConcurrency)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	current, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(current)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeBillingConfig(v)
			if err != nil {
				log.Warn("billing config reload ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("billing config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}

	water, err := decimal.NewFromString(strings.TrimSpace(v.GetString("billing.waterRate")))
	if err != nil {
		return BillingConfig{}, errors.New("billing.waterRate must be a decimal")
	}
	electricity, err := decimal.NewFromString(strings.TrimSpace(v.GetString("billing.electricityRate")))
	if err != nil {
		return BillingConfig{}, errors.New("billing.electricityRate must be a decimal")
	}
	cfg.WaterRate = water
	cfg.ElectricityRate = electricity
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))

	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.WaterRate.IsNegative() {
		return errors.New("billing.waterRate cannot be negative")
	}
	if cfg.ElectricityRate.IsNegative() {
		return errors.New("billing.electricityRate cannot be negative")
	}
	if cfg.Currency == "" {
		return errors.New("billing.currency cannot be empty")
	}
	if cfg.DueDays < 0 {
		return errors.New("billing.dueDays cannot be negative")
	}
	if cfg.PropagationConcurrency <= 0 {
		return errors.New("billing.propagationConcurrency must be positive")
	}
	return nil
}

func parseRate(raw string, def decimal.Decimal) decimal.Decimal {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return parsed
}
