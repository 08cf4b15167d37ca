// Package config loads the service configuration from the environment.
// Values are read once here and passed explicitly into constructors; no
// business logic reads the environment itself.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the explicit configuration for the settlement service.
type Config struct {
	Port     string
	Env      string
	BankCode string

	DatabaseURL string
	RedisAddr   string

	PrivateKeyPath string
	PublicKeyPath  string

	RelayURL        string
	KeyDirectoryURL string
	RelayTimeout    time.Duration

	TransferMin decimal.Decimal
	TransferMax decimal.Decimal

	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads .env (if present) and the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on system env variables")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		BankCode:        getEnv("BANK_CODE", "VTB"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		PrivateKeyPath:  getEnv("PRIVATE_KEY_PATH", "keys/private.pem"),
		PublicKeyPath:   getEnv("PUBLIC_KEY_PATH", "keys/public.pem"),
		RelayURL:        getEnv("RELAY_URL", "http://localhost:9090"),
		KeyDirectoryURL: getEnv("KEY_DIRECTORY_URL", ""),
	}

	var err error
	if cfg.RelayTimeout, err = getDuration("RELAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TransferMin, err = getDecimal("TRANSFER_MIN", "0.01"); err != nil {
		return nil, err
	}
	if cfg.TransferMax, err = getDecimal("TRANSFER_MAX", "1000000"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getInt("RATE_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}

	if cfg.TransferMin.GreaterThan(cfg.TransferMax) {
		return nil, fmt.Errorf("TRANSFER_MIN %s exceeds TRANSFER_MAX %s", cfg.TransferMin, cfg.TransferMax)
	}
	return cfg, nil
}

// Helper to get env with a default fallback.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	raw := getEnv(key, fallback)
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
