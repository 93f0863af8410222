// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vendorgate/vendorgate/pkg/observability"
	"github.com/vendorgate/vendorgate/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	Audit         AuditConfig
	RateLimit     RateLimitConfig
	Webhooks      WebhookConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds identity resolution configuration
type AuthConfig struct {
	// OIDC provider issued by the hosted auth service. Optional; when unset
	// only opaque session tokens are accepted.
	OIDCIssuerURL string
	OIDCClientID  string

	SessionTTL time.Duration
	// ResolverCacheSize bounds the request-scoped memoization cache.
	ResolverCacheSize int
	ResolverCacheTTL  time.Duration
}

// AuditConfig holds audit trail storage configuration
type AuditConfig struct {
	// SQLitePath switches the audit trail to an embedded database.
	// Empty means audit events share the main Postgres instance.
	SQLitePath string
}

// RateLimitConfig holds edge rate-limit configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// WebhookConfig holds webhook delivery configuration
type WebhookConfig struct {
	DeliveryTimeout time.Duration
	MaxAttempts     int
	// RetrySchedule is the cron spec for the retry sweep.
	RetrySchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Audit:         AuditConfig{SQLitePath: getEnv("VENDORGATE_AUDIT_SQLITE", "")},
		RateLimit:     loadRateLimitConfig(),
		Webhooks:      loadWebhookConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("VENDORGATE_HOST", "0.0.0.0"),
		Port:            getEnv("VENDORGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("VENDORGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("VENDORGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("VENDORGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("VENDORGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("VENDORGATE_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("VENDORGATE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("VENDORGATE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("VENDORGATE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("VENDORGATE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if endpoint := getEnv("VENDORGATE_S3_ENDPOINT", ""); endpoint != "" {
		cfg.S3Endpoint = endpoint
	}
	if region := getEnv("VENDORGATE_S3_REGION", ""); region != "" {
		cfg.S3Region = region
	}
	if bucket := getEnv("VENDORGATE_S3_BUCKET", ""); bucket != "" {
		cfg.S3Bucket = bucket
	}
	cfg.S3AccessKey = getEnv("VENDORGATE_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("VENDORGATE_S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnvBool("VENDORGATE_S3_PATH_STYLE", false)
	if maxBytes := getEnvInt64("VENDORGATE_S3_MAX_OBJECT_BYTES", 0); maxBytes > 0 {
		cfg.MaxObjectBytes = maxBytes
	}

	if redisURL := getEnv("VENDORGATE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	cfg.RedisPassword = getEnv("VENDORGATE_REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("VENDORGATE_REDIS_DB", 0)
	cfg.CacheEnabled = getEnvBool("VENDORGATE_CACHE_ENABLED", true)
	if ttl := getEnvDuration("VENDORGATE_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = ttl
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCIssuerURL:     getEnv("VENDORGATE_OIDC_ISSUER", ""),
		OIDCClientID:      getEnv("VENDORGATE_OIDC_CLIENT_ID", ""),
		SessionTTL:        getEnvDuration("VENDORGATE_SESSION_TTL", 24*time.Hour),
		ResolverCacheSize: getEnvInt("VENDORGATE_RESOLVER_CACHE_SIZE", 4096),
		ResolverCacheTTL:  getEnvDuration("VENDORGATE_RESOLVER_CACHE_TTL", 30*time.Second),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("VENDORGATE_RATELIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("VENDORGATE_RATELIMIT_REQUESTS", 300),
		WindowDuration:    getEnvDuration("VENDORGATE_RATELIMIT_WINDOW", time.Minute),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		DeliveryTimeout: getEnvDuration("VENDORGATE_WEBHOOK_TIMEOUT", 10*time.Second),
		MaxAttempts:     getEnvInt("VENDORGATE_WEBHOOK_MAX_ATTEMPTS", 5),
		RetrySchedule:   getEnv("VENDORGATE_WEBHOOK_RETRY_SCHEDULE", "@every 30s"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("VENDORGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("VENDORGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("VENDORGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("VENDORGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("VENDORGATE_OTEL_SERVICE_NAME", "vendorgate"),
		OTelServiceVersion: getEnv("VENDORGATE_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("VENDORGATE_OTEL_INSECURE", true),
	}
}

// Validate checks the configuration for fatal misconfiguration
func (c *Config) Validate() error {
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("VENDORGATE_POSTGRES_URL is required")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("VENDORGATE_RATELIMIT_REQUESTS must be positive")
	}
	if c.Auth.OIDCIssuerURL != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("VENDORGATE_OIDC_CLIENT_ID is required when an OIDC issuer is configured")
	}
	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("VENDORGATE_WEBHOOK_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
