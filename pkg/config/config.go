package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/adminhub/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Cache configuration
	Cache CacheConfig

	// Auth configuration
	Auth AuthConfig

	// Menu seed configuration
	Menu MenuConfig

	// Scheduled jobs configuration
	Jobs JobsConfig

	// Audit trail configuration
	Audit AuditConfig

	// Observability configuration
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

	// PublicURL is the externally reachable base used in mailed links
	PublicURL   string
	CORSOrigins []string

	// TrustedProxies lists peers (CIDRs or addresses) whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty trusts only the socket peer.
	TrustedProxies []string
}

// DatabaseConfig holds relational store settings
type DatabaseConfig struct {
	PostgresURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// CacheConfig holds entity cache settings. An empty RedisURL selects the
// in-process cache.
type CacheConfig struct {
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisPoolSize   int
	RedisMaxRetries int
	MemoryCacheSize int

	// IdentityTTL bounds how long a user snapshot is served from cache
	IdentityTTL time.Duration
	MenuTreeTTL time.Duration
}

// AuthConfig holds token and bootstrap settings
type AuthConfig struct {
	SecretKey       string
	AccessTokenTTL  time.Duration
	ResetTokenTTL   time.Duration
	ConfirmTokenTTL time.Duration

	SuperuserEmail    string
	SuperuserPassword string

	LoginRateLimit  int
	LoginRateWindow time.Duration

	EmailsFrom string
}

// MenuConfig holds the menu seed settings
type MenuConfig struct {
	SeedFile     string // applied at startup when set
	WatchSeed    bool   // reapply SeedFile whenever it changes
	SeedDebounce time.Duration
}

// JobsConfig holds cron schedules for maintenance jobs. An empty schedule
// disables the job.
type JobsConfig struct {
	TreeWarmSchedule       string
	LimiterCleanupSchedule string
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool
	// LogEvents mirrors every event to the application log
	LogEvents         bool
	Retention         time.Duration
	RetentionSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// Tracing
	OTelEnabled     bool
	OTelEndpoint    string
	OTelInsecure    bool
	OTelSampleRatio float64
	ServiceName     string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Menu:          loadMenuConfig(),
		Jobs:          loadJobsConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ADMINHUB_HOST", "0.0.0.0"),
		Port:            getEnv("ADMINHUB_PORT", "8001"),
		ReadTimeout:     getEnvDuration("ADMINHUB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ADMINHUB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ADMINHUB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ADMINHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ADMINHUB_HEALTH_PORT", "9090"),
		PublicURL:       strings.TrimRight(getEnv("ADMINHUB_PUBLIC_URL", "http://localhost:8001"), "/"),
		CORSOrigins: getEnvList("ADMINHUB_CORS_ORIGINS", []string{
			"http://localhost",
			"http://localhost:8080",
			"http://localhost:3000",
		}),
		TrustedProxies: getEnvList("ADMINHUB_TRUSTED_PROXIES", nil),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		PostgresURL:     getEnv("ADMINHUB_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("ADMINHUB_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns:    getEnvInt("ADMINHUB_POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("ADMINHUB_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		AutoMigrate:     getEnvBool("ADMINHUB_AUTO_MIGRATE", true),
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		RedisURL:        getEnv("ADMINHUB_REDIS_URL", ""),
		RedisPassword:   getEnv("ADMINHUB_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("ADMINHUB_REDIS_DB", 0),
		RedisPoolSize:   getEnvInt("ADMINHUB_REDIS_POOL_SIZE", 10),
		RedisMaxRetries: getEnvInt("ADMINHUB_REDIS_MAX_RETRIES", 3),
		MemoryCacheSize: getEnvInt("ADMINHUB_MEMORY_CACHE_SIZE", 10000),
		IdentityTTL:     getEnvDuration("ADMINHUB_IDENTITY_CACHE_TTL", 600*time.Second),
		MenuTreeTTL:     getEnvDuration("ADMINHUB_MENU_TREE_CACHE_TTL", 600*time.Second),
	}
}

// loadAuthConfig loads token and bootstrap configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SecretKey:         getEnv("ADMINHUB_SECRET_KEY", ""),
		AccessTokenTTL:    getEnvDuration("ADMINHUB_ACCESS_TOKEN_TTL", 7*24*time.Hour),
		ResetTokenTTL:     getEnvDuration("ADMINHUB_RESET_TOKEN_TTL", time.Hour),
		ConfirmTokenTTL:   getEnvDuration("ADMINHUB_CONFIRM_TOKEN_TTL", 7*24*time.Hour),
		SuperuserEmail:    getEnv("ADMINHUB_SUPERUSER_EMAIL", ""),
		SuperuserPassword: getEnv("ADMINHUB_SUPERUSER_PASSWORD", ""),
		LoginRateLimit:    getEnvInt("ADMINHUB_LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:   getEnvDuration("ADMINHUB_LOGIN_RATE_WINDOW", time.Minute),
		EmailsFrom:        getEnv("ADMINHUB_EMAILS_FROM", "noreply@localhost"),
	}
}

// loadMenuConfig loads menu seed configuration from environment
func loadMenuConfig() MenuConfig {
	return MenuConfig{
		SeedFile:     getEnv("ADMINHUB_MENU_SEED_FILE", ""),
		WatchSeed:    getEnvBool("ADMINHUB_MENU_SEED_WATCH", false),
		SeedDebounce: getEnvDuration("ADMINHUB_MENU_SEED_DEBOUNCE", 500*time.Millisecond),
	}
}

// loadJobsConfig loads maintenance job schedules from environment
func loadJobsConfig() JobsConfig {
	return JobsConfig{
		TreeWarmSchedule:       getEnv("ADMINHUB_TREE_WARM_SCHEDULE", "@every 5m"),
		LimiterCleanupSchedule: getEnv("ADMINHUB_LIMITER_CLEANUP_SCHEDULE", "@every 1m"),
	}
}

// loadAuditConfig loads audit trail configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:           getEnvBool("ADMINHUB_AUDIT_ENABLED", true),
		LogEvents:         getEnvBool("ADMINHUB_AUDIT_LOG_EVENTS", false),
		Retention:         getEnvDuration("ADMINHUB_AUDIT_RETENTION", 90*24*time.Hour),
		RetentionSchedule: getEnv("ADMINHUB_AUDIT_RETENTION_SCHEDULE", "@daily"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:        observability.ParseLogLevel(getEnv("ADMINHUB_LOG_LEVEL", "info")),
		MetricsEnabled:  getEnvBool("ADMINHUB_METRICS_ENABLED", true),
		OTelEnabled:     getEnvBool("ADMINHUB_OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("ADMINHUB_OTEL_ENDPOINT", "localhost:4317"),
		OTelInsecure:    getEnvBool("ADMINHUB_OTEL_INSECURE", true),
		OTelSampleRatio: getEnvFloat("ADMINHUB_OTEL_SAMPLE_RATIO", 1),
		ServiceName:     getEnv("ADMINHUB_SERVICE_NAME", "adminhub"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("invalid trusted proxy %q", proxy)
		}
	}

	if c.Database.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("postgres max connections must be positive")
	}

	if c.Auth.SecretKey == "" {
		return fmt.Errorf("secret key is required")
	}
	if len(c.Auth.SecretKey) < 32 {
		return fmt.Errorf("secret key must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.ResetTokenTTL <= 0 || c.Auth.ConfirmTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if (c.Auth.SuperuserEmail == "") != (c.Auth.SuperuserPassword == "") {
		return fmt.Errorf("superuser email and password must be set together")
	}

	if c.Cache.IdentityTTL <= 0 {
		return fmt.Errorf("identity cache TTL must be positive")
	}
	if c.Cache.RedisURL == "" && c.Cache.MemoryCacheSize <= 0 {
		return fmt.Errorf("memory cache size must be positive when redis is not configured")
	}

	if c.Menu.WatchSeed && c.Menu.SeedFile == "" {
		return fmt.Errorf("watching the menu seed requires a seed file")
	}

	if c.Audit.Enabled && c.Audit.RetentionSchedule != "" && c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when tracing is enabled")
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("trace sample ratio must be between 0 and 1")
	}

	return nil
}

func validProxy(entry string) bool {
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
