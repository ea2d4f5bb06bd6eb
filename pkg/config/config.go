package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tessergrc/authcore/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Identity      IdentityConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Audit         AuditConfig
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

// IdentityConfig holds token verification settings
type IdentityConfig struct {
	// Issuer is the OIDC issuer URL used for discovery.
	Issuer   string
	Audience string

	// JWKSURL overrides discovery when set (test environments).
	JWKSURL string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds the quota counter store settings
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// AuditConfig holds audit persistence and archival settings
type AuditConfig struct {
	// Backend is "db", "file" or "none".
	Backend    string
	FilePath   string
	BufferSize int

	ArchiveEnabled  bool
	ArchiveBucket   string
	ArchiveRegion   string
	ArchiveEndpoint string
	ArchiveSchedule string
	S3AccessKey     string
	S3SecretKey     string
	S3UsePathStyle  bool

	RetentionMaxAge time.Duration
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
		Server: ServerConfig{
			Host:            getEnv("AUTHCORE_HOST", "0.0.0.0"),
			Port:            getEnv("AUTHCORE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("AUTHCORE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("AUTHCORE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("AUTHCORE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("AUTHCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("AUTHCORE_HEALTH_PORT", "9090"),
		},
		Identity: IdentityConfig{
			Issuer:   getEnv("AUTHCORE_IDENTITY_ISSUER", ""),
			Audience: getEnv("AUTHCORE_IDENTITY_AUDIENCE", ""),
			JWKSURL:  getEnv("AUTHCORE_IDENTITY_JWKS_URL", ""),
		},
		Database: DatabaseConfig{
			URL:          getEnv("AUTHCORE_POSTGRES_URL", "postgres://localhost/authcore?sslmode=disable"),
			MaxOpenConns: getEnvInt("AUTHCORE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("AUTHCORE_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("AUTHCORE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("AUTHCORE_REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("AUTHCORE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("AUTHCORE_REDIS_DB", -1),
			PoolSize: getEnvInt("AUTHCORE_REDIS_POOL_SIZE", 0),
		},
		Audit: AuditConfig{
			Backend:         getEnv("AUTHCORE_AUDIT_BACKEND", "db"),
			FilePath:        getEnv("AUTHCORE_AUDIT_FILE_PATH", "/var/log/authcore/audit"),
			BufferSize:      getEnvInt("AUTHCORE_AUDIT_BUFFER_SIZE", 1024),
			ArchiveEnabled:  getEnvBool("AUTHCORE_AUDIT_ARCHIVE_ENABLED", false),
			ArchiveBucket:   getEnv("AUTHCORE_AUDIT_ARCHIVE_BUCKET", ""),
			ArchiveRegion:   getEnv("AUTHCORE_AUDIT_ARCHIVE_REGION", "us-east-1"),
			ArchiveEndpoint: getEnv("AUTHCORE_AUDIT_ARCHIVE_ENDPOINT", ""),
			ArchiveSchedule: getEnv("AUTHCORE_AUDIT_ARCHIVE_SCHEDULE", "30 0 * * *"),
			S3AccessKey:     getEnv("AUTHCORE_S3_ACCESS_KEY", ""),
			S3SecretKey:     getEnv("AUTHCORE_S3_SECRET_KEY", ""),
			S3UsePathStyle:  getEnvBool("AUTHCORE_S3_USE_PATH_STYLE", false),
			RetentionMaxAge: getEnvDuration("AUTHCORE_AUDIT_RETENTION", 90*24*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("AUTHCORE_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("AUTHCORE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("AUTHCORE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("AUTHCORE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("AUTHCORE_OTEL_SERVICE_NAME", "authcore"),
			OTelServiceVersion: getEnv("AUTHCORE_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("AUTHCORE_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
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

	if c.Identity.Issuer == "" && c.Identity.JWKSURL == "" {
		return fmt.Errorf("identity issuer (or explicit JWKS URL) is required")
	}
	if c.Identity.Audience == "" {
		return fmt.Errorf("identity audience is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	switch c.Audit.Backend {
	case "db", "file", "none":
	default:
		return fmt.Errorf("invalid audit backend: %s (must be db, file, or none)", c.Audit.Backend)
	}
	if c.Audit.ArchiveEnabled {
		if c.Audit.Backend != "db" {
			return fmt.Errorf("audit archival requires the db backend")
		}
		if c.Audit.ArchiveBucket == "" {
			return fmt.Errorf("audit archive bucket is required when archival is enabled")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
