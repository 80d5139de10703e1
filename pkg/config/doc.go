// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from TENANTGATE_* environment
// variables with sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	TENANTGATE_HOST="0.0.0.0"
//	TENANTGATE_PORT="8080"
//	TENANTGATE_HEALTH_PORT="9090"
//	TENANTGATE_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	TENANTGATE_POSTGRES_URL="postgres://localhost/tenantgate"  # required
//	TENANTGATE_POSTGRES_MAX_CONNS="20"
//	TENANTGATE_POSTGRES_USE_PGX="false"
//	TENANTGATE_REDIS_URL="redis://localhost:6379/0"            # enables opaque sessions
//
// Credentials (at least one of JWT or Redis sessions):
//
//	TENANTGATE_JWT_ISSUER="https://id.example.com"
//	TENANTGATE_JWT_AUDIENCE="tenantgate"
//	TENANTGATE_JWT_JWKS_URL="https://id.example.com/.well-known/jwks.json"
//	TENANTGATE_JWT_PUBLIC_KEY_FILE="/etc/tenantgate/jwks.json"  # instead of the URL
//	TENANTGATE_COOKIE_HASH_KEY="<base64, 32+ bytes>"
//	TENANTGATE_COOKIE_BLOCK_KEY="<base64, 16/24/32 bytes>"
//
// Access settings:
//
//	TENANTGATE_STRICT_MEMBERSHIP="true"
//	TENANTGATE_ROUTES_FILE="/etc/tenantgate/routes.yaml"
//	TENANTGATE_TENANT_ROLE="tenantgate_tenant"   # role assumed while bound
//	TENANTGATE_INVITATION_CLEANUP_SCHEDULE="@hourly"
//
// Observability settings:
//
//	TENANTGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTGATE_AUDIT_DB_ENABLED="true"
//	TENANTGATE_OTEL_ENABLED="true"
//	TENANTGATE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
