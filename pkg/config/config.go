package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Search      SearchConfig      `json:"search"`
	Auth        AuthConfig        `json:"auth"`
	Retry       RetryConfig       `json:"retry"`
	Uploader    UploaderConfig    `json:"uploader"`
	Redis       RedisConfig       `json:"redis"`
	Postgres    PostgresConfig    `json:"postgres"`
	Server      ServerConfig      `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

// SearchConfig identifies the target search service and index
type SearchConfig struct {
	Endpoint   string        `json:"endpoint"`
	IndexName  string        `json:"index_name"`
	APIVersion string        `json:"api_version"`
	Timeout    time.Duration `json:"timeout"`
}

// AuthMode selects how requests to the service are authenticated
type AuthMode string

const (
	AuthModeAPIKey            AuthMode = "api_key"
	AuthModeClientCredentials AuthMode = "client_credentials"
	AuthModeManagedIdentity   AuthMode = "managed_identity"
	AuthModeCLI               AuthMode = "cli"
)

// AuthConfig contains credential configuration
type AuthConfig struct {
	Mode         AuthMode `json:"mode"`
	APIKey       string   `json:"api_key"`
	TenantID     string   `json:"tenant_id"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scope        string   `json:"scope"`
}

// RetryConfig tunes the backoff applied to retryable failures
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	Multiplier float64       `json:"multiplier"`
}

// UploaderConfig tunes the batch document uploader
type UploaderConfig struct {
	BatchSize int `json:"batch_size"`
	Workers   int `json:"workers"`
}

// RedisConfig contains the optional failed-batch queue connection
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// PostgresConfig contains the optional document source connection
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
	Table    string `json:"table"`
	KeyCol   string `json:"key_col"`
}

// ServerConfig contains the diagnostics HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// DiagnosticsConfig controls diagnostic report output
type DiagnosticsConfig struct {
	ReportPath     string `json:"report_path"`
	MaxSuggestions int    `json:"max_suggestions"`
}

// Load loads configuration from environment variables with sensible
// defaults. A missing endpoint is not an error here: the diagnostics
// runner must be able to start against an unconfigured environment and
// report it as a failed check.
func Load() (*Config, error) {
	config := &Config{
		Search: SearchConfig{
			Endpoint:   getEnvString("AZURE_SEARCH_SERVICE_ENDPOINT", ""),
			IndexName:  getEnvString("AZURE_SEARCH_INDEX_NAME", ""),
			APIVersion: getEnvString("AZURE_SEARCH_API_VERSION", "2023-11-01"),
			Timeout:    getEnvDuration("SEARCH_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			Mode:         AuthMode(getEnvString("AZURE_SEARCH_AUTH_MODE", string(AuthModeAPIKey))),
			APIKey:       getEnvString("AZURE_SEARCH_API_KEY", ""),
			TenantID:     getEnvString("AZURE_TENANT_ID", ""),
			ClientID:     getEnvString("AZURE_CLIENT_ID", ""),
			ClientSecret: getEnvString("AZURE_CLIENT_SECRET", ""),
			Scope:        getEnvString("AZURE_SEARCH_SCOPE", "https://search.azure.com/.default"),
		},
		Retry: RetryConfig{
			MaxRetries: getEnvInt("RETRY_MAX_RETRIES", 3),
			BaseDelay:  getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			MaxDelay:   getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
			Multiplier: getEnvFloat("RETRY_MULTIPLIER", 2.0),
		},
		Uploader: UploaderConfig{
			BatchSize: getEnvInt("UPLOADER_BATCH_SIZE", 1000),
			Workers:   getEnvInt("UPLOADER_WORKERS", 4),
		},
		Redis: RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Postgres: PostgresConfig{
			Host:     getEnvString("PG_HOST", ""),
			Port:     getEnvInt("PG_PORT", 5432),
			Name:     getEnvString("PG_NAME", ""),
			User:     getEnvString("PG_USER", ""),
			Password: getEnvString("PG_PASSWORD", ""),
			SSLMode:  getEnvString("PG_SSL_MODE", "disable"),
			Table:    getEnvString("PG_SOURCE_TABLE", ""),
			KeyCol:   getEnvString("PG_SOURCE_KEY_COL", "id"),
		},
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stderr"),
		},
		Diagnostics: DiagnosticsConfig{
			ReportPath:     getEnvString("DIAGNOSTICS_REPORT_PATH", "searchkit-diagnostics.json"),
			MaxSuggestions: getEnvInt("DIAGNOSTICS_MAX_SUGGESTIONS", 3),
		},
	}

	return config, nil
}

// Validate checks that the configuration is sufficient to call the
// service. Run before search and upload operations, not before diagnostics.
func (c *Config) Validate() error {
	if c.Search.Endpoint == "" {
		return fmt.Errorf("search endpoint is required (set AZURE_SEARCH_SERVICE_ENDPOINT)")
	}
	if u, err := url.Parse(c.Search.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("search endpoint %q is not a valid URL", c.Search.Endpoint)
	}
	if c.Search.IndexName == "" {
		return fmt.Errorf("index name is required (set AZURE_SEARCH_INDEX_NAME)")
	}

	switch c.Auth.Mode {
	case AuthModeAPIKey:
		if c.Auth.APIKey == "" {
			return fmt.Errorf("api key is required for auth mode %q (set AZURE_SEARCH_API_KEY)", c.Auth.Mode)
		}
	case AuthModeClientCredentials:
		if c.Auth.TenantID == "" || c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return fmt.Errorf("tenant, client id and client secret are required for auth mode %q", c.Auth.Mode)
		}
	case AuthModeManagedIdentity, AuthModeCLI:
		// No local configuration needed
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.Uploader.BatchSize <= 0 || c.Uploader.Workers <= 0 {
		return fmt.Errorf("uploader batch size and workers must be positive")
	}

	return nil
}

// PostgresDSN returns the document source connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Name,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.SSLMode,
	)
}

// HasRedis reports whether a failed-batch queue is configured
func (c *Config) HasRedis() bool {
	return c.Redis.Addr != ""
}

// HasPostgres reports whether a Postgres document source is configured
func (c *Config) HasPostgres() bool {
	return c.Postgres.Host != "" && c.Postgres.Name != "" && c.Postgres.Table != ""
}

// EndpointHost returns the host portion of the endpoint, or ""
func (c *Config) EndpointHost() string {
	u, err := url.Parse(c.Search.Endpoint)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
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
