package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "SERVER_PORT", "APP_ENV", "LOG_LEVEL", "REDIS_URL",
		"STOCK_CACHE_TTL_SECONDS", "LOW_STOCK_THRESHOLD", "INVOICE_NUMBER_MAX_ATTEMPTS", "DB_MAX_CONNS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.StockCacheTTL)
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, 10, cfg.InvoiceNumberMaxAttempts)
	assert.Equal(t, int32(0), cfg.DBMaxConns)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/billing")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "5")
	t.Setenv("LOW_STOCK_THRESHOLD", "3")
	t.Setenv("DB_MAX_CONNS", "20")

	cfg := Load()
	assert.Equal(t, "postgres://localhost/billing", cfg.DatabaseURL)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 5*time.Second, cfg.StockCacheTTL)
	assert.Equal(t, 3, cfg.LowStockThreshold)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
}

func TestIntFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("LOW_STOCK_THRESHOLD", "many")
	assert.Equal(t, 10, intFromEnv("LOW_STOCK_THRESHOLD", 10))

	t.Setenv("LOW_STOCK_THRESHOLD", "-4")
	assert.Equal(t, 10, intFromEnv("LOW_STOCK_THRESHOLD", 10))
}
