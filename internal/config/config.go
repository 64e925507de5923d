package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName      string
	AppVersion   string
	Environment  string
	HTTPAddr     string
	PublicURL    string
	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SeedDemoData bool

	Billing   BillingDefaults
	Payment   PaymentConfig
	Scheduler SchedulerConfig
}

// SchedulerConfig controls the background sweeps.
type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	EnabledJobs []string
	LockTTL     time.Duration
}

// BillingDefaults seeds the billing rates when billing.yml is absent.
type BillingDefaults struct {
	WaterRate           string
	ElectricityRate     string
	Currency            string
	DueDays             int
	EnforceUniquePeriod bool
}

type PaymentConfig struct {
	DefaultProvider string
	RedirectTrust   string
	HTTPTimeout     time.Duration
	SuccessURL      string
	CancelURL       string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIBase       string

	MidtransServerKey  string
	MidtransProduction bool

	CheckoutRateLimit int
}

const (
	RedirectTrustVerify  = "verify"
	RedirectTrustTrust   = "trust"
	RedirectTrustWebhook = "webhook"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	publicURL := strings.TrimRight(getenv("APP_PUBLIC_URL", "http://localhost:3000"), "/")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "dormhub"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		PublicURL:    publicURL,
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "dormhub"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		SeedDemoData: getenvBool("SEED_DEMO_DATA", false),

		Billing: BillingDefaults{
			WaterRate:           getenv("BILLING_WATER_RATE", "18"),
			ElectricityRate:     getenv("BILLING_ELECTRICITY_RATE", "8"),
			Currency:            strings.ToUpper(getenv("BILLING_CURRENCY", "THB")),
			DueDays:             getenvInt("BILLING_DUE_DAYS", 7),
			EnforceUniquePeriod: getenvBool("BILLING_ENFORCE_UNIQUE_PERIOD", false),
		},
		Payment: PaymentConfig{
			DefaultProvider:     strings.ToLower(getenv("PAYMENT_PROVIDER", "stripe")),
			RedirectTrust:       normalizeRedirectTrust(getenv("PAYMENT_REDIRECT_TRUST", RedirectTrustVerify)),
			HTTPTimeout:         getenvDuration("PAYMENT_HTTP_TIMEOUT", 15*time.Second),
			SuccessURL:          getenv("PAYMENT_SUCCESS_URL", publicURL+"/payments/return?success=true"),
			CancelURL:           getenv("PAYMENT_CANCEL_URL", publicURL+"/payments/return?canceled=true"),
			StripeSecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			StripeAPIBase:       getenv("STRIPE_API_BASE", "https://api.stripe.com"),
			MidtransServerKey:   strings.TrimSpace(getenv("MIDTRANS_SERVER_KEY", "")),
			MidtransProduction:  getenvBool("MIDTRANS_PRODUCTION", false),
			CheckoutRateLimit:   getenvInt("PAYMENT_CHECKOUT_RATE_LIMIT", 30),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),
			EnabledJobs: getenvList("SCHEDULER_JOBS"),
			LockTTL:     getenvDuration("SCHEDULER_LOCK_TTL", 2*time.Minute),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func normalizeRedirectTrust(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case RedirectTrustTrust:
		return RedirectTrustTrust
	case RedirectTrustWebhook:
		return RedirectTrustWebhook
	default:
		return RedirectTrustVerify
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
