package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/marinova/oceanmeter/pkg/observability"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_WORD", "TRUE")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_DURATION_BAD", "soon")

	if got := getEnv("TEST_STR", "default"); got != "custom" {
		t.Errorf("getEnv() = %v, want custom", got)
	}
	if got := getEnv("TEST_STR_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want default", got)
	}
	if !getEnvBool("TEST_BOOL_ONE", false) || !getEnvBool("TEST_BOOL_WORD", false) {
		t.Error("getEnvBool() should accept 1 and TRUE")
	}
	if getEnvBool("TEST_BOOL_UNSET", false) {
		t.Error("getEnvBool() should fall back to default")
	}
	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want 42", got)
	}
	if got := getEnvInt("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("getEnvInt() = %v, want default 7", got)
	}
	if got := getEnvDuration("TEST_DURATION", 0); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() = %v, want default", got)
	}
}

func TestGetEnvList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"unset uses default", "", []string{"a"}},
		{"splits and trims", " x , y,,z ", []string{"x", "y", "z"}},
		{"only separators uses default", " , ", []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_LIST", tt.value)
			got := getEnvList("TEST_LIST", []string{"a"})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("getEnvList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]observability.LogLevel{
		"debug":   observability.DebugLevel,
		"INFO":    observability.InfoLevel,
		"warning": observability.WarnLevel,
		"error":   observability.ErrorLevel,
		"verbose": observability.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoadServerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := loadServerConfig()
		if cfg.Port != "5000" {
			t.Errorf("Port = %v, want 5000", cfg.Port)
		}
		want := []string{"http://localhost:3000", "https://www.marinova.in", "https://marinova.in"}
		if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
			t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
		}
	})

	t.Run("PORT fallback", func(t *testing.T) {
		t.Setenv("PORT", "8081")
		if got := loadServerConfig().Port; got != "8081" {
			t.Errorf("Port = %v, want 8081", got)
		}
	})

	t.Run("prefixed variable wins", func(t *testing.T) {
		t.Setenv("PORT", "8081")
		t.Setenv("OCEANMETER_PORT", "9000")
		if got := loadServerConfig().Port; got != "9000" {
			t.Errorf("Port = %v, want 9000", got)
		}
	})
}

func TestLoadAuthAndAIFallbacks(t *testing.T) {
	t.Setenv("JWT_SECRET", "legacy-secret")
	t.Setenv("OPENROUTER_API_KEY", "legacy-key")

	if got := loadAuthConfig().JWTSecret; got != "legacy-secret" {
		t.Errorf("JWTSecret = %v, want legacy-secret", got)
	}
	if got := loadAIConfig().OpenRouterAPIKey; got != "legacy-key" {
		t.Errorf("OpenRouterAPIKey = %v, want legacy-key", got)
	}

	t.Setenv("OCEANMETER_OPENROUTER_API_KEY", "new-key")
	if got := loadAIConfig().OpenRouterAPIKey; got != "new-key" {
		t.Errorf("OpenRouterAPIKey = %v, want new-key", got)
	}
}

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: "5000"},
		Storage:   StorageConfig{Type: StorageMemory},
		Auth:      AuthConfig{Mode: AuthJWT, JWTSecret: "s"},
		AI:        AIConfig{OpenRouterAPIKey: "k", Timeout: time.Minute},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerMinute: 30, Burst: 10},
		Reports:   ReportsConfig{Schedule: "15 0 1 * *"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"non numeric port", func(c *Config) { c.Server.Port = "http" }, "invalid server port"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongo" }, "invalid storage type"},
		{"postgres without url", func(c *Config) { c.Storage.Type = StoragePostgres }, "postgres URL is required"},
		{"sqlite without path", func(c *Config) { c.Storage.Type = StorageSQLite }, "sqlite path is required"},
		{"jwt without secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT secret is required"},
		{"oidc without issuer", func(c *Config) { c.Auth.Mode = AuthOIDC }, "OIDC issuer URL"},
		{"unknown auth", func(c *Config) { c.Auth.Mode = "basic" }, "invalid auth mode"},
		{"missing api key", func(c *Config) { c.AI.OpenRouterAPIKey = "" }, "OpenRouter API key is required"},
		{"zero timeout", func(c *Config) { c.AI.Timeout = 0 }, "AI timeout must be positive"},
		{"bad rate limit", func(c *Config) { c.RateLimit.Burst = 0 }, "rate limit"},
		{"disabled rate limit ignores values", func(c *Config) { c.RateLimit = RateLimitConfig{} }, ""},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "oceanmeter"
		}, "OpenTelemetry endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateReports(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateReports(); err == nil {
		t.Error("ValidateReports() should reject memory storage")
	}

	cfg.Storage = StorageConfig{Type: StoragePostgres}
	if err := cfg.ValidateReports(); err == nil {
		t.Error("ValidateReports() should require a postgres URL")
	}

	cfg.Storage = StorageConfig{Type: StorageSQLite, SQLitePath: "x.db"}
	if err := cfg.ValidateReports(); err == nil {
		t.Error("ValidateReports() should require a bucket")
	}

	cfg.Reports.S3Bucket = "reports"
	cfg.Reports.S3AccessKey = "only-half"
	if err := cfg.ValidateReports(); err == nil {
		t.Error("ValidateReports() should require both keys")
	}

	cfg.Reports.S3SecretKey = "other-half"
	if err := cfg.ValidateReports(); err != nil {
		t.Errorf("ValidateReports() unexpected error: %v", err)
	}

	cfg.Reports.Schedule = ""
	if err := cfg.ValidateReports(); err == nil {
		t.Error("ValidateReports() should require a schedule")
	}
}

func TestLoad_SkipsServerValidation(t *testing.T) {
	t.Setenv("OCEANMETER_STORAGE_TYPE", "postgres")
	t.Setenv("OCEANMETER_POSTGRES_URL", "postgres://localhost/oceanmeter")
	t.Setenv("OCEANMETER_S3_BUCKET", "marinova-reports")
	t.Setenv("OCEANMETER_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OCEANMETER_OPENROUTER_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg := Load()
	if err := cfg.ValidateReports(); err != nil {
		t.Errorf("ValidateReports() unexpected error: %v", err)
	}
	if cfg.Reports.Schedule != "15 0 1 * *" {
		t.Errorf("Reports.Schedule = %q, want the monthly default", cfg.Reports.Schedule)
	}
	if cfg.Reports.Prefix != "reports/usage" {
		t.Errorf("Reports.Prefix = %q", cfg.Reports.Prefix)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should still require server secrets")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("OCEANMETER_JWT_SECRET", "secret")
	t.Setenv("OCEANMETER_OPENROUTER_API_KEY", "key")
	t.Setenv("OCEANMETER_STORAGE_TYPE", "SQLite")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Storage.Type != StorageSQLite {
		t.Errorf("Storage.Type = %v, want sqlite", cfg.Storage.Type)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without a URL")
	}

	t.Setenv("OCEANMETER_AUTH_MODE", "oidc")
	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should fail for oidc without issuer")
	}
}
