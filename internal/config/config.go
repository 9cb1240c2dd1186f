package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string
	LogLevel    string

	// RedisURL is optional; empty disables the stock-info cache.
	RedisURL      string
	StockCacheTTL time.Duration

	LowStockThreshold        int
	InvoiceNumberMaxAttempts int
	DBMaxConns               int32
}

// Load reads .env (if present) and the process environment.
// Precedence: explicit env var > .env file > default.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		Port:                     getEnv("SERVER_PORT", "8080"),
		Env:                      getEnv("APP_ENV", "development"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		StockCacheTTL:            time.Duration(intFromEnv("STOCK_CACHE_TTL_SECONDS", 60)) * time.Second,
		LowStockThreshold:        intFromEnv("LOW_STOCK_THRESHOLD", 10),
		InvoiceNumberMaxAttempts: intFromEnv("INVOICE_NUMBER_MAX_ATTEMPTS", 10),
		DBMaxConns:               int32(intFromEnv("DB_MAX_CONNS", 0)),
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("invalid integer for %s: %s, using %d", key, v, def)
		return def
	}
	return n
}
