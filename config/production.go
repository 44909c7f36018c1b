// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Cache      CacheConfig      `json:"cache"`
	Provider   ProviderConfig   `json:"provider"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Operator   OperatorConfig   `json:"operator"`
	Sentry     SentryConfig     `json:"sentry"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	ProxyHeader     string        `json:"proxy_header"`
	TrustedProxies  []string      `json:"trusted_proxies"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	IndexTTL    time.Duration `json:"index_ttl"`
	HealthEvery time.Duration `json:"health_every"`
}

// ProviderConfig configures the outbound messaging provider
type ProviderConfig struct {
	Mode               string        `json:"mode"` // mock, http
	BaseURL            string        `json:"base_url"`
	AccountSID         string        `json:"account_sid"`
	AuthToken          string        `json:"auth_token"`
	MessagingServiceID string        `json:"messaging_service_id"`
	StatusCallbackURL  string        `json:"status_callback_url"`
	RatePerSecond      float64       `json:"rate_per_second"`
	Burst              int           `json:"burst"`
	Timeout            time.Duration `json:"timeout"`
}

// SchedulerConfig configures the automation trigger tick and the completion sweep
type SchedulerConfig struct {
	Enabled             bool          `json:"enabled"`
	TriggerSpec         string        `json:"trigger_spec"`
	SweepSpec           string        `json:"sweep_spec"`
	DispatchConcurrency int           `json:"dispatch_concurrency"`
	DeliveryTimeout     time.Duration `json:"delivery_timeout"`
	ResumeStaleAfter    time.Duration `json:"resume_stale_after"`
	BatchSize           int           `json:"batch_size"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // json, console
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// OperatorConfig holds the shared secret used to verify operator bearer tokens
type OperatorConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	Audience  string `json:"audience"`
}

type SentryConfig struct {
	DSN              string  `json:"dsn"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1024*1024),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "wedding:"),
			IndexTTL:    getEnvDuration("CACHE_INDEX_TTL", 7*24*time.Hour),
			HealthEvery: getEnvDuration("CACHE_HEALTH_INTERVAL", 30*time.Second),
		},
		Provider: ProviderConfig{
			Mode:               getEnvString("PROVIDER_MODE", "mock"),
			BaseURL:            getEnvString("PROVIDER_BASE_URL", "https://api.twilio.com"),
			AccountSID:         getEnvString("PROVIDER_ACCOUNT_SID", ""),
			AuthToken:          getEnvString("PROVIDER_AUTH_TOKEN", ""),
			MessagingServiceID: getEnvString("PROVIDER_MESSAGING_SERVICE_ID", ""),
			StatusCallbackURL:  getEnvString("PROVIDER_STATUS_CALLBACK_URL", ""),
			RatePerSecond:      getEnvFloat("PROVIDER_RATE_PER_SECOND", 50),
			Burst:              getEnvInt("PROVIDER_BURST", 10),
			Timeout:            getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getEnvBool("SCHEDULER_ENABLED", true),
			TriggerSpec:         getEnvString("SCHEDULER_TRIGGER_SPEC", "@every 1m"),
			SweepSpec:           getEnvString("SCHEDULER_SWEEP_SPEC", "@every 5m"),
			DispatchConcurrency: getEnvInt("SCHEDULER_DISPATCH_CONCURRENCY", 16),
			DeliveryTimeout:     getEnvDuration("SCHEDULER_DELIVERY_TIMEOUT", 24*time.Hour),
			ResumeStaleAfter:    getEnvDuration("SCHEDULER_RESUME_STALE_AFTER", 10*time.Minute),
			BatchSize:           getEnvInt("SCHEDULER_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Format:     getEnvString("LOG_FORMAT", "json"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/wedding/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Operator: OperatorConfig{
			JWTSecret: getEnvString("OPERATOR_JWT_SECRET", ""),
			Issuer:    getEnvString("OPERATOR_JWT_ISSUER", "wedding-automations"),
			Audience:  getEnvString("OPERATOR_JWT_AUDIENCE", "wedding-operators"),
		},
		Sentry: SentryConfig{
			DSN:              getEnvString("SENTRY_DSN", ""),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 0),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads variables from path when it exists. Variables already set in the environment win.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Validate provider configuration
	switch cfg.Provider.Mode {
	case "mock":
	case "http":
		if cfg.Provider.BaseURL == "" {
			errs = append(errs, "PROVIDER_BASE_URL is required in http mode")
		}
		if cfg.Provider.AccountSID == "" {
			errs = append(errs, "PROVIDER_ACCOUNT_SID is required in http mode")
		}
		if cfg.Provider.AuthToken == "" {
			errs = append(errs, "PROVIDER_AUTH_TOKEN is required in http mode")
		}
	default:
		errs = append(errs, "PROVIDER_MODE must be one of: [mock http]")
	}
	if cfg.Provider.RatePerSecond <= 0 {
		errs = append(errs, "PROVIDER_RATE_PER_SECOND must be positive")
	}
	if cfg.Provider.Burst < 1 {
		errs = append(errs, "PROVIDER_BURST must be at least 1")
	}

	// Validate scheduler configuration
	if cfg.Scheduler.DispatchConcurrency < 1 || cfg.Scheduler.DispatchConcurrency > 64 {
		errs = append(errs, "SCHEDULER_DISPATCH_CONCURRENCY must be between 1 and 64")
	}
	if cfg.Scheduler.DeliveryTimeout <= 0 {
		errs = append(errs, "SCHEDULER_DELIVERY_TIMEOUT must be positive")
	}
	if cfg.Scheduler.ResumeStaleAfter <= 0 {
		errs = append(errs, "SCHEDULER_RESUME_STALE_AFTER must be positive")
	}
	if cfg.Scheduler.BatchSize < 1 {
		errs = append(errs, "SCHEDULER_BATCH_SIZE must be at least 1")
	}
	if cfg.Scheduler.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(cfg.Scheduler.TriggerSpec); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULER_TRIGGER_SPEC is invalid: %v", err))
		}
		if _, err := parser.Parse(cfg.Scheduler.SweepSpec); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULER_SWEEP_SPEC is invalid: %v", err))
		}
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	if cfg.Deployment.Environment == "production" && cfg.Operator.JWTSecret == "" {
		errs = append(errs, "OPERATOR_JWT_SECRET is required in production")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
