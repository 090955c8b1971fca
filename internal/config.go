package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Payment gateways.
const (
	GatewayStripe      = "stripe"
	GatewayMercadoPago = "mercadopago"
)

type Config struct {
	Env      string
	LogLevel string
	Port     uint16
	BaseURL  string

	// DashboardURL is the front-end page linked from activation emails.
	DashboardURL string

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string

	Store    StoreConfig
	Redis    RedisConfig
	Payment  PaymentConfig
	Email    EmailConfig
	Analysis AnalysisConfig
	Orders   OrdersConfig
	Sentry   SentryConfig
	Worker   WorkerConfig
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver        string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
}

// RedisConfig holds the Redis connection shared by the reconcile lock and
// the job queue. An empty Addr disables both.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// PaymentConfig holds the active gateway and its credentials.
type PaymentConfig struct {
	Gateway        string
	GatewayTimeout time.Duration
	Currency       string
	Stripe         StripeConfig
	MercadoPago    MercadoPagoConfig
}

// WebhookSecret returns the signing secret of the active gateway.
func (c PaymentConfig) WebhookSecret() string {
	if c.Gateway == GatewayStripe {
		return c.Stripe.WebhookSecret
	}
	return c.MercadoPago.WebhookSecret
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type MercadoPagoConfig struct {
	AccessToken   string
	WebhookSecret string
	BaseURL       string
}

// EmailConfig holds SMTP settings for activation emails. An empty SMTPHost
// logs emails instead of sending them.
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type AnalysisConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	SystemPrompt  string
}

type OrdersConfig struct {
	// PendingOrderTTL is how long an open order blocks a new purchase.
	PendingOrderTTL time.Duration

	// StaleOrderAge is how long an open order waits for its webhook before
	// the sweeper polls the gateway.
	StaleOrderAge time.Duration
}

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN              string
	Enabled          bool
	Environment      string
	Release          string
	SampleRate       float64
	TracesSampleRate float64
	Debug            bool
}

type WorkerConfig struct {
	PollInterval       time.Duration
	Concurrency        int
	PlanExpirySchedule string
}

func NewConfig() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		Env:          getEnv("ENV", "dev"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvUint16("PORT", 3000),
		BaseURL:      strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		DashboardURL: getEnv("DASHBOARD_URL", ""),
		CORSOrigins:  getEnvList("CORS_ALLOWED_ORIGINS"),
		Store: StoreConfig{
			Driver:        getEnv("STORE_DRIVER", StoreDriverPostgres),
			DatabaseURL:   getEnv("DATABASE_URL", ""),
			MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("MONGO_DATABASE", "easybriefing"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Payment: PaymentConfig{
			Gateway:        getEnv("PAYMENT_GATEWAY", GatewayMercadoPago),
			GatewayTimeout: getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
			Currency:       strings.ToLower(getEnv("CURRENCY", "brl")),
			Stripe: StripeConfig{
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			},
			MercadoPago: MercadoPagoConfig{
				AccessToken:   getEnv("MP_ACCESS_TOKEN", ""),
				WebhookSecret: getEnv("MP_WEBHOOK_SECRET", ""),
				BaseURL:       getEnv("MP_BASE_URL", ""),
			},
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("EMAIL_FROM", "noreply@easybriefing.app"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Easy Briefing"),
		},
		Analysis: AnalysisConfig{
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			SystemPrompt:  getEnv("SYSTEM_PROMPT", ""),
		},
		Orders: OrdersConfig{
			PendingOrderTTL: getEnvDuration("PENDING_ORDER_TTL", 30*time.Minute),
			StaleOrderAge:   getEnvDuration("STALE_ORDER_AGE", 15*time.Minute),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			Enabled:          getEnvBool("SENTRY_ENABLED", false),
			Environment:      getEnv("SENTRY_ENVIRONMENT", "development"),
			Release:          getEnv("SENTRY_RELEASE", ""),
			SampleRate:       getEnvFloat("SENTRY_SAMPLE_RATE", 1.0),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 0.0),
			Debug:            getEnvBool("SENTRY_DEBUG", false),
		},
		Worker: WorkerConfig{
			PollInterval:       getEnvDuration("WORKER_POLL_INTERVAL", time.Minute),
			Concurrency:        getEnvInt("WORKER_CONCURRENCY", 5),
			PlanExpirySchedule: getEnv("PLAN_EXPIRY_SCHEDULE", "*/15 * * * *"),
		},
	}

	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	validLevel := cfg.LogLevel == "info" || cfg.LogLevel == "debug" || cfg.LogLevel == "warn" || cfg.LogLevel == "error"
	if !validLevel {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMongo:
		if c.Store.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case StoreDriverMemory:
		if c.Env == "prod" {
			return errors.New("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Payment.Gateway {
	case GatewayStripe:
		if c.Env == "prod" && c.Payment.Stripe.SecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY must be set in production environment")
		}
	case GatewayMercadoPago:
		if c.Env == "prod" && c.Payment.MercadoPago.AccessToken == "" {
			return errors.New("MP_ACCESS_TOKEN must be set in production environment")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_GATEWAY %q", c.Payment.Gateway)
	}

	// An unsigned webhook endpoint would let anyone activate a plan.
	if c.Env == "prod" && c.Payment.WebhookSecret() == "" {
		return fmt.Errorf("webhook secret for %s must be set in production environment", c.Payment.Gateway)
	}

	if c.Payment.GatewayTimeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("WORKER_CONCURRENCY must be positive")
	}

	return nil
}

// loadDotEnv looks for .env in the working directory and up to two parents,
// so tests run from package directories pick it up too.
func loadDotEnv() {
	envPaths := []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")}
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				slog.Default().Warn("failed to load .env", slog.String("path", path), slog.Any("error", err))
			}
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint16(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseUint(value, 10, 16); err == nil {
			return uint16(n)
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "15m") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Default().Warn("Invalid duration. Using default", slog.String("key", key), slog.String("value", value))
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
