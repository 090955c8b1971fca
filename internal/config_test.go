package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/easybriefing")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, uint16(3000), cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, GatewayMercadoPago, cfg.Payment.Gateway)
	assert.Equal(t, "brl", cfg.Payment.Currency)
	assert.Equal(t, 10*time.Second, cfg.Payment.GatewayTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Orders.PendingOrderTTL)
	assert.Equal(t, 15*time.Minute, cfg.Orders.StaleOrderAge)
	assert.Equal(t, "*/15 * * * *", cfg.Worker.PlanExpirySchedule)
	assert.False(t, cfg.Redis.Enabled())
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_DRIVER", StoreDriverMongo)
	t.Setenv("PAYMENT_GATEWAY", GatewayStripe)
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("CURRENCY", "USD")
	t.Setenv("GATEWAY_TIMEOUT", "5")
	t.Setenv("STALE_ORDER_AGE", "20m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://easybriefing.app, https://www.easybriefing.app,")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint16(8080), cfg.Port)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, 5*time.Second, cfg.Payment.GatewayTimeout)
	assert.Equal(t, 20*time.Minute, cfg.Orders.StaleOrderAge)
	assert.Equal(t, "whsec_123", cfg.Payment.WebhookSecret())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"https://easybriefing.app", "https://www.easybriefing.app"}, cfg.CORSOrigins)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:   "prod",
			Store: StoreConfig{Driver: StoreDriverPostgres, DatabaseURL: "postgres://db"},
			Payment: PaymentConfig{
				Gateway:        GatewayMercadoPago,
				GatewayTimeout: 10 * time.Second,
				MercadoPago:    MercadoPagoConfig{AccessToken: "APP_USR-1", WebhookSecret: "mp-secret"},
			},
			Worker: WorkerConfig{Concurrency: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "prod without webhook secret", mutate: func(c *Config) { c.Payment.MercadoPago.WebhookSecret = "" }, wantErr: "webhook secret"},
		{name: "dev without webhook secret", mutate: func(c *Config) { c.Env = "dev"; c.Payment.MercadoPago.WebhookSecret = "" }},
		{name: "prod without access token", mutate: func(c *Config) { c.Payment.MercadoPago.AccessToken = "" }, wantErr: "MP_ACCESS_TOKEN"},
		{name: "stripe prod without key", mutate: func(c *Config) { c.Payment.Gateway = GatewayStripe }, wantErr: "STRIPE_SECRET_KEY"},
		{name: "unknown gateway", mutate: func(c *Config) { c.Payment.Gateway = "paypal" }, wantErr: "PAYMENT_GATEWAY"},
		{name: "postgres without url", mutate: func(c *Config) { c.Store.DatabaseURL = "" }, wantErr: "DATABASE_URL"},
		{name: "memory in prod", mutate: func(c *Config) { c.Store.Driver = StoreDriverMemory }, wantErr: "memory"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "STORE_DRIVER"},
		{name: "zero timeout", mutate: func(c *Config) { c.Payment.GatewayTimeout = 0 }, wantErr: "GATEWAY_TIMEOUT"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, wantErr: "WORKER_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_GO", "90s")
	t.Setenv("TEST_DURATION_SECS", "45")
	t.Setenv("TEST_DURATION_BAD", "soon")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION_GO", time.Minute))
	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_DURATION_SECS", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION_BAD", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION_UNSET", time.Minute))
}
