package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const entitlementsPrefix = "ENTITLEMENTS_JSON_"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	PSP          PSPConfig
	Idempotency  IdempotencyConfig
	Webhook      WebhookConfig
	Secrets      SecretsConfig
	RateLimit    RateLimitConfig
	Logger       LoggerConfig
	Entitlements map[string]map[string][]string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// PSPConfig holds payment processor configuration. Per-app credentials come
// from the credential source (environment or secret backend), not from here.
type PSPConfig struct {
	Sandbox     bool
	TimeoutSec  int
	MaxInflight int
}

// IdempotencyConfig holds request-idempotency settings
type IdempotencyConfig struct {
	TTL time.Duration
}

// WebhookConfig holds webhook verification settings
type WebhookConfig struct {
	TimestampTolerance time.Duration
}

// SecretsConfig selects the per-app credential backend
type SecretsConfig struct {
	// Backend is one of env, aws, vault.
	Backend string
	// Apps lists the app ids served by this deployment; required for the
	// aws and vault backends, ignored for env.
	Apps  []string
	AWS   AWSConfig
	Vault VaultConfig
}

// AWSConfig holds AWS Secrets Manager settings
type AWSConfig struct {
	Region   string
	Profile  string
	Endpoint string
}

// VaultConfig holds HashiCorp Vault settings
type VaultConfig struct {
	Address   string
	Token     string
	RoleID    string
	SecretID  string
	MountPath string
	KVVersion int
}

// RateLimitConfig holds per-IP rate limiting settings
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level      string
	Production bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		PSP: PSPConfig{
			Sandbox:     getEnvAsBool("PSP_SANDBOX", true),
			TimeoutSec:  getEnvAsInt("PSP_TIMEOUT_SEC", 30),
			MaxInflight: getEnvAsInt("PSP_MAX_INFLIGHT", 64),
		},
		Idempotency: IdempotencyConfig{
			TTL: time.Duration(getEnvAsInt("IDEMPOTENCY_TTL_DAYS", 30)) * 24 * time.Hour,
		},
		Webhook: WebhookConfig{
			TimestampTolerance: time.Duration(getEnvAsInt("WEBHOOK_TIMESTAMP_TOLERANCE_SEC", 300)) * time.Second,
		},
		Secrets: SecretsConfig{
			Backend: getEnv("SECRETS_BACKEND", "env"),
			Apps:    splitList(getEnv("PSP_APPS", "")),
			AWS: AWSConfig{
				Region:   getEnv("AWS_REGION", "us-east-1"),
				Profile:  getEnv("AWS_PROFILE", ""),
				Endpoint: getEnv("AWS_ENDPOINT_URL", ""),
			},
			Vault: VaultConfig{
				Address:   getEnv("VAULT_ADDR", ""),
				Token:     getEnv("VAULT_TOKEN", ""),
				RoleID:    getEnv("VAULT_ROLE_ID", ""),
				SecretID:  getEnv("VAULT_SECRET_ID", ""),
				MountPath: getEnv("VAULT_MOUNT_PATH", "secret"),
				KVVersion: getEnvAsInt("VAULT_KV_VERSION", 2),
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 50),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 100),
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Production: isProduction(),
		},
	}

	entitlements, err := loadEntitlements()
	if err != nil {
		return nil, err
	}
	cfg.Entitlements = entitlements

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.Secrets.Backend {
	case "env", "aws", "vault":
	default:
		return nil, fmt.Errorf("SECRETS_BACKEND must be one of env, aws, vault (got %q)", cfg.Secrets.Backend)
	}
	if cfg.Secrets.Backend != "env" && len(cfg.Secrets.Apps) == 0 {
		return nil, fmt.Errorf("PSP_APPS is required when SECRETS_BACKEND=%s", cfg.Secrets.Backend)
	}

	return cfg, nil
}

// loadEntitlements scans ENTITLEMENTS_JSON_<APP> variables. Each value is a
// JSON object mapping plan id to a feature list. The map is immutable after
// process start.
func loadEntitlements() (map[string]map[string][]string, error) {
	out := make(map[string]map[string][]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, entitlementsPrefix) {
			continue
		}
		appID := suffixToAppID(strings.TrimPrefix(key, entitlementsPrefix))
		var plans map[string][]string
		if err := json.Unmarshal([]byte(value), &plans); err != nil {
			return nil, fmt.Errorf("%s is not a valid plan-to-features map: %w", key, err)
		}
		out[appID] = plans
	}
	return out, nil
}

func suffixToAppID(suffix string) string {
	return strings.ReplaceAll(strings.ToLower(suffix), "_", "-")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isProduction() bool {
	env := getEnv("ENV", getEnv("NODE_ENV", "development"))
	return strings.EqualFold(env, "production")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
