package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv              string
	Port                string
	StoreDriver         string
	DatabaseURL         string
	DatabaseAutoMigrate bool
	RedisURL            string
	JWTSecret           string
	JWTIssuer           string
	JWTAudience         string
	JWTClockSkew        time.Duration
	CORSAllowedOrigins  []string
	IdempotencyTTL      time.Duration
	CatalogCacheTTL     time.Duration

	SaleNumberPrefix  string
	SaleMaxAttempts   int
	SaleRetryBackoff  time.Duration
	RateLimitSales    string
	PriceHistoryLimit int

	WorkerConcurrency int
	WorkerQueue       string
	ImpactLockTTL     time.Duration

	LogLevel         string
	LogFormat        string
	MetricsNamespace string
	TracingEnabled   bool
	TracingEndpoint  string
	TracingService   string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		StoreDriver:         strings.ToLower(strings.TrimSpace(k.String("STORE_DRIVER"))),
		DatabaseURL:         strings.TrimSpace(k.String("DATABASE_URL")),
		DatabaseAutoMigrate: parseBool(k.String("DATABASE_AUTO_MIGRATE")),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		JWTSecret:           k.String("JWT_SECRET"),
		JWTIssuer:           strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:         strings.TrimSpace(k.String("JWT_AUDIENCE")),
		JWTClockSkew:        parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		SaleNumberPrefix:    valueOrDefault(k.String("SALE_NUMBER_PREFIX"), "TRX"),
		SaleMaxAttempts:     parseInt(k.String("SALE_MAX_ATTEMPTS"), 5),
		SaleRetryBackoff:    parseDuration(k.String("SALE_RETRY_BACKOFF"), "25ms"),
		RateLimitSales:      valueOrDefault(k.String("RATE_LIMIT_SALES"), "60-M"),
		PriceHistoryLimit:   parseInt(k.String("PRICE_HISTORY_DEFAULT_LIMIT"), 20),
		WorkerConcurrency:   parseInt(k.String("WORKER_CONCURRENCY"), 5),
		WorkerQueue:         valueOrDefault(k.String("WORKER_QUEUE"), "default"),
		ImpactLockTTL:       parseDuration(k.String("IMPACT_LOCK_TTL"), "30s"),
		LogLevel:            valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		LogFormat:           valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		MetricsNamespace:    valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "kasir"),
		TracingEnabled:      parseBool(k.String("OBS_TRACING_ENABLED")),
		TracingEndpoint:     strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
		TracingService:      valueOrDefault(k.String("OBS_TRACING_SERVICE"), "backend-kasir"),
	}

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = StoreDriverPostgres
		}
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.SaleMaxAttempts < 1 {
		return nil, errors.New("SALE_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RedisEnabled reports whether Redis backed features should be wired.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
