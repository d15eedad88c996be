package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	DBMaxConns  int32
	LockTimeout time.Duration

	RedisAddr        string
	RedisPass        string
	SettingsCacheTTL time.Duration
	EventsEnabled    bool

	AccrualSchedule      string
	AccrualTimezone      *time.Location
	AccrualWorkers       int
	AccrualRetryAttempts int
	AccrualRetryBackoff  time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	loc, err := time.LoadLocation(getEnv("ACCRUAL_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("ACCRUAL_TIMEZONE: %w", err)
	}

	cfg := &Config{
		DBSource:        dbSource,
		Port:            getEnv("SERVER_PORT", "8080"),
		Env:             getEnv("ENVIRONMENT", "development"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPass:       os.Getenv("REDIS_PASS"),
		AccrualSchedule: getEnv("ACCRUAL_SCHEDULE", "5 0 * * *"),
		AccrualTimezone: loc,
	}

	var errs []error
	cfg.DBMaxConns = int32(getInt("DB_MAX_CONNS", 20, &errs))
	cfg.LockTimeout = getDuration("LOCK_TIMEOUT", 3*time.Second, &errs)
	cfg.SettingsCacheTTL = getDuration("SETTINGS_CACHE_TTL", time.Minute, &errs)
	cfg.EventsEnabled = getBool("EVENTS_ENABLED", true, &errs)
	cfg.AccrualWorkers = getInt("ACCRUAL_WORKERS", 8, &errs)
	cfg.AccrualRetryAttempts = getInt("ACCRUAL_RETRY_ATTEMPTS", 3, &errs)
	cfg.AccrualRetryBackoff = getDuration("ACCRUAL_RETRY_BACKOFF", 200*time.Millisecond, &errs)
	if len(errs) > 0 {
		return nil, errs[0]
	}

	if cfg.AccrualWorkers < 1 {
		return nil, fmt.Errorf("ACCRUAL_WORKERS must be at least 1")
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}
