package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreBadger   = "badger"
	StoreMemory   = "memory"
)

// Cache backends
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Catalog sources
const (
	CatalogFile  = "file"
	CatalogStore = "store"
)

// Config holds application configuration
type Config struct {
	StoreBackend     string
	DatabaseURL      string
	BadgerPath       string
	CacheBackend     string
	RedisURL         string
	CacheTTL         time.Duration
	RabbitMQURL      string
	RabbitMQPrefetch int
	JobMaxRetries    int
	ScheduleInterval time.Duration
	IdlePause        time.Duration
	ServerPort       string
	FrontendURL      string
	EnableHSTS       bool
	RateLimit        string
	CatalogPath      string
	CatalogSource    string
	SyncInterval     time.Duration
	Timezone         string
	WeekStart        time.Weekday
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
	MetricsEnabled   bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		BadgerPath:       getEnv("BADGER_PATH", ""),
		CacheBackend:     strings.ToLower(getEnv("CACHE_BACKEND", CacheRedis)),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		CacheTTL:         getEnvDuration("CACHE_TTL", 7*24*time.Hour),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		JobMaxRetries:    getEnvInt("JOB_MAX_RETRIES", 3),
		ScheduleInterval: getEnvDuration("SCHEDULE_INTERVAL", time.Hour),
		IdlePause:        getEnvDuration("BOUNDARY_IDLE_PAUSE", 30*24*time.Hour),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		RateLimit:        getEnv("RATE_LIMIT", "20-S"),
		CatalogPath:      getEnv("CATALOG_PATH", ""),
		CatalogSource:    strings.ToLower(getEnv("CATALOG_SOURCE", CatalogFile)),
		SyncInterval:     getEnvDuration("SYNC_INTERVAL", 10*time.Second),
		Timezone:         getEnv("TIMEZONE", "UTC"),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
	}

	weekStart, err := parseWeekday(getEnv("WEEK_START", "monday"))
	if err != nil {
		return nil, err
	}
	cfg.WeekStart = weekStart

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %s", StorePostgres)
		}
	case StoreBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required when STORE_BACKEND is %s", StoreBadger)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (must be 'postgres', 'badger', or 'memory')", c.StoreBackend)
	}

	switch c.CacheBackend {
	case CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (must be 'redis' or 'memory')", c.CacheBackend)
	}

	switch c.CatalogSource {
	case CatalogFile, CatalogStore:
	default:
		return fmt.Errorf("unknown CATALOG_SOURCE %q (must be 'file' or 'store')", c.CatalogSource)
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if c.ScheduleInterval <= 0 {
		return fmt.Errorf("SCHEDULE_INTERVAL must be positive, got %s", c.ScheduleInterval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone period boundaries are computed in
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func parseWeekday(value string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), value) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid WEEK_START %q", value)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
