// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for everything except the database URL and the signing secret.
//
// # Configuration Structure
//
// Server settings:
//
//	ADMINHUB_HOST="0.0.0.0"
//	ADMINHUB_PORT="8001"
//	ADMINHUB_HEALTH_PORT="9090"
//	ADMINHUB_PUBLIC_URL="https://admin.example.com"
//	ADMINHUB_CORS_ORIGINS="http://localhost:3000,https://admin.example.com"
//	ADMINHUB_TRUSTED_PROXIES="10.0.0.0/8"
//
// Database settings:
//
//	ADMINHUB_POSTGRES_URL="postgres://localhost/adminhub?sslmode=disable"
//	ADMINHUB_POSTGRES_MAX_CONNS="20"
//	ADMINHUB_AUTO_MIGRATE="true"
//
// Cache settings (leave the Redis URL empty for the in-process cache):
//
//	ADMINHUB_REDIS_URL="redis://localhost:6379/0"
//	ADMINHUB_IDENTITY_CACHE_TTL="600s"
//
// Auth settings:
//
//	ADMINHUB_SECRET_KEY="<at least 32 bytes>"
//	ADMINHUB_ACCESS_TOKEN_TTL="168h"
//	ADMINHUB_RESET_TOKEN_TTL="1h"
//	ADMINHUB_SUPERUSER_EMAIL="root@admin.com"
//	ADMINHUB_SUPERUSER_PASSWORD="..."
//	ADMINHUB_LOGIN_RATE_LIMIT="10"
//
// Menu seed and maintenance jobs (an empty schedule disables the job):
//
//	ADMINHUB_MENU_SEED_FILE="/etc/adminhub/menus.yaml"
//	ADMINHUB_MENU_SEED_WATCH="false"
//	ADMINHUB_TREE_WARM_SCHEDULE="@every 5m"
//	ADMINHUB_LIMITER_CLEANUP_SCHEDULE="@every 1m"
//
// Audit trail (retention purges run on the given schedule):
//
//	ADMINHUB_AUDIT_ENABLED="true"
//	ADMINHUB_AUDIT_LOG_EVENTS="false"
//	ADMINHUB_AUDIT_RETENTION="2160h"
//	ADMINHUB_AUDIT_RETENTION_SCHEDULE="@daily"
//
// Observability settings:
//
//	ADMINHUB_LOG_LEVEL="info"
//	ADMINHUB_METRICS_ENABLED="true"
//	ADMINHUB_OTEL_ENABLED="false"
//	ADMINHUB_OTEL_ENDPOINT="localhost:4317"
//	ADMINHUB_OTEL_SAMPLE_RATIO="1"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
