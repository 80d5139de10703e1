package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database and session store connections
	Database postgres.ConnectionConfig
	Redis    postgres.RedisConfig

	// Credential validation
	Auth AuthConfig

	// Access guard and tenant binding
	Access AccessConfig

	// Invitation lifecycle
	Invitations InvitationConfig

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
}

// AuthConfig configures the credential validators. JWT validation is enabled
// when an issuer is set; opaque sessions are enabled when Redis is configured.
type AuthConfig struct {
	JWTIssuer        string
	JWTAudience      string
	JWTJWKSURL       string
	JWTPublicKeyFile string

	SessionTTL       time.Duration
	SessionCacheSize int
	SessionCacheTTL  time.Duration

	CookieName     string
	CookieHashKey  []byte
	CookieBlockKey []byte
	CookieSecure   bool
}

// AccessConfig configures the guard and the tenant binder
type AccessConfig struct {
	// StrictMembership re-reads the membership store on every workspace request
	StrictMembership bool

	// RoutesFile is an optional YAML file of additional route rules
	RoutesFile string

	// TenantRole is assumed by connections while they are bound
	TenantRole   string
	ClearTimeout time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// InvitationConfig configures invitation expiry and cleanup
type InvitationConfig struct {
	TTL             time.Duration
	CleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Audit trail in the database in addition to the log
	AuditDBEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// JWTEnabled reports whether bearer JWTs are accepted
func (c AuthConfig) JWTEnabled() bool {
	return c.JWTIssuer != ""
}

// SessionsEnabled reports whether opaque session tokens are accepted
func (c *Config) SessionsEnabled() bool {
	return c.Redis.URL != ""
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          auth,
		Access:        loadAccessConfig(),
		Invitations:   loadInvitationConfig(),
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
		Host:            getEnv("TENANTGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TENANTGATE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		URL:         getEnv("TENANTGATE_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("TENANTGATE_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("TENANTGATE_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("TENANTGATE_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("TENANTGATE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("TENANTGATE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		UsePgx:      getEnvBool("TENANTGATE_POSTGRES_USE_PGX", false),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() postgres.RedisConfig {
	return postgres.RedisConfig{
		URL:        getEnv("TENANTGATE_REDIS_URL", ""),
		Password:   getEnv("TENANTGATE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("TENANTGATE_REDIS_DB", 0),
		MaxRetries: getEnvInt("TENANTGATE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("TENANTGATE_REDIS_POOL_SIZE", 10),
	}
}

// loadAuthConfig loads credential validation settings. Cookie keys are
// base64 encoded.
func loadAuthConfig() (AuthConfig, error) {
	hashKey, err := getEnvBase64("TENANTGATE_COOKIE_HASH_KEY")
	if err != nil {
		return AuthConfig{}, err
	}
	blockKey, err := getEnvBase64("TENANTGATE_COOKIE_BLOCK_KEY")
	if err != nil {
		return AuthConfig{}, err
	}

	return AuthConfig{
		JWTIssuer:        getEnv("TENANTGATE_JWT_ISSUER", ""),
		JWTAudience:      getEnv("TENANTGATE_JWT_AUDIENCE", ""),
		JWTJWKSURL:       getEnv("TENANTGATE_JWT_JWKS_URL", ""),
		JWTPublicKeyFile: getEnv("TENANTGATE_JWT_PUBLIC_KEY_FILE", ""),
		SessionTTL:       getEnvDuration("TENANTGATE_SESSION_TTL", 24*time.Hour),
		SessionCacheSize: getEnvInt("TENANTGATE_SESSION_CACHE_SIZE", 10000),
		SessionCacheTTL:  getEnvDuration("TENANTGATE_SESSION_CACHE_TTL", 5*time.Second),
		CookieName:       getEnv("TENANTGATE_COOKIE_NAME", "tenantgate_session"),
		CookieHashKey:    hashKey,
		CookieBlockKey:   blockKey,
		CookieSecure:     getEnvBool("TENANTGATE_COOKIE_SECURE", true),
	}, nil
}

// loadAccessConfig loads guard and tenant binding settings
func loadAccessConfig() AccessConfig {
	return AccessConfig{
		StrictMembership:  getEnvBool("TENANTGATE_STRICT_MEMBERSHIP", true),
		RoutesFile:        getEnv("TENANTGATE_ROUTES_FILE", ""),
		TenantRole:        getEnv("TENANTGATE_TENANT_ROLE", "tenantgate_tenant"),
		ClearTimeout:      getEnvDuration("TENANTGATE_TENANT_CLEAR_TIMEOUT", 5*time.Second),
		RateLimitRequests: getEnvInt("TENANTGATE_RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("TENANTGATE_RATE_LIMIT_WINDOW", time.Minute),
	}
}

// loadInvitationConfig loads invitation settings
func loadInvitationConfig() InvitationConfig {
	return InvitationConfig{
		TTL:             getEnvDuration("TENANTGATE_INVITATION_TTL", 7*24*time.Hour),
		CleanupSchedule: getEnv("TENANTGATE_INVITATION_CLEANUP_SCHEDULE", "@hourly"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("TENANTGATE_LOG_LEVEL", "info")),
		AuditDBEnabled:     getEnvBool("TENANTGATE_AUDIT_DB_ENABLED", true),
		OTelEnabled:        getEnvBool("TENANTGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TENANTGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TENANTGATE_OTEL_SERVICE_NAME", "tenantgate"),
		OTelServiceVersion: getEnv("TENANTGATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TENANTGATE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("TENANTGATE_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if c.Access.RateLimitRequests <= 0 || c.Access.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Invitations.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Invitations.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid invitation cleanup schedule: %w", err)
		}
	}

	// Validate OpenTelemetry config
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

func (c *Config) validateAuth() error {
	if !c.Auth.JWTEnabled() && !c.SessionsEnabled() {
		return fmt.Errorf("no credential validator configured: set a JWT issuer or a Redis URL")
	}

	if c.Auth.JWTEnabled() {
		if c.Auth.JWTAudience == "" {
			return fmt.Errorf("JWT audience is required when a JWT issuer is set")
		}
		hasURL, hasFile := c.Auth.JWTJWKSURL != "", c.Auth.JWTPublicKeyFile != ""
		if hasURL == hasFile {
			return fmt.Errorf("exactly one of JWT JWKS URL or public key file is required")
		}
	}

	if n := len(c.Auth.CookieHashKey); n > 0 && n < 32 {
		return fmt.Errorf("cookie hash key must be at least 32 bytes")
	}
	switch len(c.Auth.CookieBlockKey) {
	case 0:
	case 16, 24, 32:
		if len(c.Auth.CookieHashKey) == 0 {
			return fmt.Errorf("cookie block key requires a hash key")
		}
	default:
		return fmt.Errorf("cookie block key must be 16, 24 or 32 bytes")
	}

	return nil
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

// getEnvBase64 decodes a base64 environment variable. Unset yields nil.
func getEnvBase64(key string) ([]byte, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", key, err)
	}
	return decoded, nil
}
