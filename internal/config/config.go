// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all runtime configuration for the ingestion service.
type Config struct {
	StoreDriver string
	DatabaseURL string
	RedisURL    string

	GatewayPort string
	GRPCPort    string
	APIKey      string // shared secret presented by trusted producers

	MaxConcurrent int
	MinDelay      time.Duration
	ScrapeTimeout time.Duration

	FetchRPS         float64 // per-host request rate
	FetchMaxAttempts int
	FetchRetryDelay  time.Duration

	SourcesFile    string
	ScrapeSchedule string // empty: run one cycle and exit
	ReapSchedule   string

	StaleAfter time.Duration // 0 disables the stale purge
	DefaultTTL time.Duration // 0 disables the default deadline

	WatchdogInterval    time.Duration
	WatchdogMaxFailures int

	AdzunaAppID   string
	AdzunaAppKey  string
	AdzunaCountry string // e.g. "fr", "gb", "us"

	LogLevel string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	driver := getenv("STORE_DRIVER", DriverPostgres)
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, driver)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if driver == DriverPostgres && dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	maxConcurrent, err := positiveInt("RATE_LIMIT_MAX_CONCURRENT", 2)
	if err != nil {
		return nil, err
	}
	minDelayMs, err := nonNegativeInt("RATE_LIMIT_MIN_DELAY_MS", 2000)
	if err != nil {
		return nil, err
	}
	scrapeTimeout, err := positiveInt("SCRAPE_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := positiveInt("FETCH_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	retryDelayMs, err := nonNegativeInt("FETCH_RETRY_DELAY_MS", 5000)
	if err != nil {
		return nil, err
	}
	staleDays, err := nonNegativeInt("STALE_AFTER_DAYS", 14)
	if err != nil {
		return nil, err
	}
	ttlDays, err := nonNegativeInt("DEFAULT_GIG_TTL_DAYS", 14)
	if err != nil {
		return nil, err
	}
	watchdogInterval, err := positiveInt("WATCHDOG_INTERVAL_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	watchdogFailures, err := positiveInt("WATCHDOG_MAX_FAILURES", 3)
	if err != nil {
		return nil, err
	}

	rps := 1.0
	if s := os.Getenv("FETCH_REQUESTS_PER_SECOND"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("FETCH_REQUESTS_PER_SECOND must be a positive number, got %q", s)
		}
		rps = v
	}

	return &Config{
		StoreDriver: driver,
		DatabaseURL: dbURL,
		RedisURL:    redisURL,

		GatewayPort: getenv("GATEWAY_PORT", "8083"),
		GRPCPort:    getenv("GRPC_PORT", "9083"),
		APIKey:      os.Getenv("EXTERNAL_GIGS_API_KEY"),

		MaxConcurrent: maxConcurrent,
		MinDelay:      time.Duration(minDelayMs) * time.Millisecond,
		ScrapeTimeout: time.Duration(scrapeTimeout) * time.Second,

		FetchRPS:         rps,
		FetchMaxAttempts: maxAttempts,
		FetchRetryDelay:  time.Duration(retryDelayMs) * time.Millisecond,

		SourcesFile:    getenv("SOURCES_FILE", "sources.yaml"),
		ScrapeSchedule: os.Getenv("SCRAPE_SCHEDULE"),
		ReapSchedule:   getenv("REAP_SCHEDULE", "0 * * * *"),

		StaleAfter: time.Duration(staleDays) * 24 * time.Hour,
		DefaultTTL: time.Duration(ttlDays) * 24 * time.Hour,

		WatchdogInterval:    time.Duration(watchdogInterval) * time.Second,
		WatchdogMaxFailures: watchdogFailures,

		AdzunaAppID:   os.Getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:  os.Getenv("ADZUNA_APP_KEY"),
		AdzunaCountry: getenv("ADZUNA_COUNTRY", "fr"),

		LogLevel: getenv("LOG_LEVEL", "info"),
	}, nil
}

// RequireAPIKey fails when the gateway secret is not configured. Only the
// gateway binary needs it.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("EXTERNAL_GIGS_API_KEY is required")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func positiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}

func nonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, s)
	}
	return v, nil
}
