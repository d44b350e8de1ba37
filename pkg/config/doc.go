// Package config loads oceanmeter configuration from environment variables.
//
// Every variable carries the OCEANMETER_ prefix. PORT, JWT_SECRET and
// OPENROUTER_API_KEY are read as fallbacks so existing deployments keep
// working.
//
// Server:
//
//	OCEANMETER_HOST="0.0.0.0"
//	OCEANMETER_PORT="5000"
//	OCEANMETER_ALLOWED_ORIGINS="http://localhost:3000,https://marinova.in"
//
// Storage:
//
//	OCEANMETER_STORAGE_TYPE="postgres"  # memory, sqlite, postgres
//	OCEANMETER_SQLITE_PATH="oceanmeter.db"
//	OCEANMETER_POSTGRES_URL="postgres://localhost/oceanmeter?sslmode=disable"
//	OCEANMETER_CATALOG_FILE="/etc/oceanmeter/plans.yaml"
//
// Cache and distributed rate limiting:
//
//	OCEANMETER_REDIS_URL="localhost:6379"
//	OCEANMETER_CACHE_TTL="10m"
//
// Auth:
//
//	OCEANMETER_AUTH_MODE="jwt"  # jwt, oidc
//	OCEANMETER_JWT_SECRET="..."
//	OCEANMETER_OIDC_ISSUER_URL="https://accounts.example.com"
//	OCEANMETER_OIDC_CLIENT_ID="oceanmeter"
//
// AI:
//
//	OCEANMETER_OPENROUTER_API_KEY="sk-or-..."
//	OCEANMETER_AI_TIMEOUT="60s"
//
// Reports:
//
//	OCEANMETER_REPORTS_SCHEDULE="15 0 1 * *"
//	OCEANMETER_S3_BUCKET="marinova-reports"
//	OCEANMETER_S3_ENDPOINT="http://localhost:9000"  # MinIO
//
// Observability:
//
//	OCEANMETER_LOG_LEVEL="info"
//	OCEANMETER_OTEL_ENABLED="false"
//	OCEANMETER_OTEL_ENDPOINT="localhost:4317"
//
// LoadConfig validates the result and returns a descriptive error for the
// first invalid setting.
package config
