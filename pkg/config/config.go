package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/marinova/oceanmeter/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Redis         RedisConfig
	Auth          AuthConfig
	AI            AIConfig
	RateLimit     RateLimitConfig
	Reports       ReportsConfig
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
	AllowedOrigins  []string
}

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// StorageConfig selects the ledger backend
type StorageConfig struct {
	Type             string
	SQLitePath       string
	PostgresURL      string
	PostgresMaxConns int
	// CatalogFile optionally overrides the built-in plan catalog
	CatalogFile string
}

// RedisConfig enables the shared ledger cache and the distributed rate limiter
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	CacheTTL time.Duration
	L1Size   int
	L1TTL    time.Duration
}

// Enabled reports whether a redis server is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// Auth modes
const (
	AuthJWT  = "jwt"
	AuthOIDC = "oidc"
)

// AuthConfig selects how bearer tokens are verified
type AuthConfig struct {
	Mode          string
	JWTSecret     string
	OIDCIssuerURL string
	OIDCClientID  string
}

// AIConfig configures the generation provider
type AIConfig struct {
	OpenRouterAPIKey string
	BaseURL          string
	Timeout          time.Duration
	Referer          string
	Title            string
}

// RateLimitConfig limits AI requests per user
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// ReportsConfig configures the monthly usage export
type ReportsConfig struct {
	Schedule       string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	Prefix         string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables and validates
// everything the API server needs
func LoadConfig() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the environment without validating. Jobs that use only part of
// the configuration validate that part themselves.
func Load() *Config {
	return &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		AI:            loadAIConfig(),
		RateLimit:     loadRateLimitConfig(),
		Reports:       loadReportsConfig(),
		Observability: loadObservabilityConfig(),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("OCEANMETER_HOST", "0.0.0.0"),
		Port:            getEnv("OCEANMETER_PORT", getEnv("PORT", "5000")),
		ReadTimeout:     getEnvDuration("OCEANMETER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("OCEANMETER_WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:     getEnvDuration("OCEANMETER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("OCEANMETER_SHUTDOWN_TIMEOUT", 30*time.Second),
		AllowedOrigins: getEnvList("OCEANMETER_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"https://www.marinova.in",
			"https://marinova.in",
		}),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:             strings.ToLower(getEnv("OCEANMETER_STORAGE_TYPE", StorageMemory)),
		SQLitePath:       getEnv("OCEANMETER_SQLITE_PATH", "oceanmeter.db"),
		PostgresURL:      getEnv("OCEANMETER_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("OCEANMETER_POSTGRES_MAX_CONNS", 20),
		CatalogFile:      getEnv("OCEANMETER_CATALOG_FILE", ""),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("OCEANMETER_REDIS_URL", ""),
		Password: getEnv("OCEANMETER_REDIS_PASSWORD", ""),
		DB:       getEnvInt("OCEANMETER_REDIS_DB", 0),
		PoolSize: getEnvInt("OCEANMETER_REDIS_POOL_SIZE", 10),
		CacheTTL: getEnvDuration("OCEANMETER_CACHE_TTL", 10*time.Minute),
		L1Size:   getEnvInt("OCEANMETER_L1_CACHE_SIZE", 10000),
		L1TTL:    getEnvDuration("OCEANMETER_L1_CACHE_TTL", 5*time.Second),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Mode:          strings.ToLower(getEnv("OCEANMETER_AUTH_MODE", AuthJWT)),
		JWTSecret:     getEnv("OCEANMETER_JWT_SECRET", getEnv("JWT_SECRET", "")),
		OIDCIssuerURL: getEnv("OCEANMETER_OIDC_ISSUER_URL", ""),
		OIDCClientID:  getEnv("OCEANMETER_OIDC_CLIENT_ID", ""),
	}
}

func loadAIConfig() AIConfig {
	return AIConfig{
		OpenRouterAPIKey: getEnv("OCEANMETER_OPENROUTER_API_KEY", getEnv("OPENROUTER_API_KEY", "")),
		BaseURL:          getEnv("OCEANMETER_OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		Timeout:          getEnvDuration("OCEANMETER_AI_TIMEOUT", 60*time.Second),
		Referer:          getEnv("OCEANMETER_AI_REFERER", "https://www.marinova.in"),
		Title:            getEnv("OCEANMETER_AI_TITLE", "MARINOVA Ocean Data Platform"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("OCEANMETER_RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("OCEANMETER_RATE_LIMIT_RPM", 30),
		Burst:             getEnvInt("OCEANMETER_RATE_LIMIT_BURST", 10),
	}
}

func loadReportsConfig() ReportsConfig {
	return ReportsConfig{
		Schedule:       getEnv("OCEANMETER_REPORTS_SCHEDULE", "15 0 1 * *"),
		S3Bucket:       getEnv("OCEANMETER_S3_BUCKET", ""),
		S3Region:       getEnv("OCEANMETER_S3_REGION", "ap-south-1"),
		S3Endpoint:     getEnv("OCEANMETER_S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("OCEANMETER_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("OCEANMETER_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("OCEANMETER_S3_USE_PATH_STYLE", false),
		Prefix:         getEnv("OCEANMETER_REPORTS_PREFIX", "reports/usage"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           ParseLogLevel(getEnv("OCEANMETER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("OCEANMETER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OCEANMETER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OCEANMETER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OCEANMETER_OTEL_SERVICE_NAME", "oceanmeter"),
		OTelServiceVersion: getEnv("OCEANMETER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OCEANMETER_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite, or postgres)", c.Storage.Type)
	}

	switch c.Auth.Mode {
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT secret is required for jwt auth")
		}
	case AuthOIDC:
		if c.Auth.OIDCIssuerURL == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer URL and client ID are required for oidc auth")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be jwt or oidc)", c.Auth.Mode)
	}

	if c.AI.OpenRouterAPIKey == "" {
		return fmt.Errorf("OpenRouter API key is required")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requests per minute and burst must be positive when enabled")
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

// ValidateReports checks the settings the report job needs
func (c *Config) ValidateReports() error {
	switch c.Storage.Type {
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("reports require sqlite or postgres storage, got %q", c.Storage.Type)
	}
	if c.Reports.Schedule == "" {
		return fmt.Errorf("report schedule is required")
	}
	if c.Reports.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required for reports")
	}
	if (c.Reports.S3AccessKey == "") != (c.Reports.S3SecretKey == "") {
		return fmt.Errorf("S3 access key and secret key must be set together")
	}
	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
