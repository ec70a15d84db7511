package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Catalog   CatalogConfig
	Cache     CacheConfig
	Paging    PagingConfig
	Vendors   VendorsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// UpstreamConfig holds product feed configuration
type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PageSize          int           `mapstructure:"page_size"`
	MaxPages          int           `mapstructure:"max_pages"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"` // 0 disables
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// CatalogConfig holds catalog cache configuration
type CatalogConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	FailureBackoff time.Duration `mapstructure:"failure_backoff"`
	SnapshotPath   string        `mapstructure:"snapshot_path"`
	FallbackPath   string        `mapstructure:"fallback_path"`
	DelegatePaging bool          `mapstructure:"delegate_paging"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// PagingConfig holds listing page size limits
type PagingConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// VendorsConfig holds vendor list configuration
type VendorsConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/storefront/")

	// Environment variable settings
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory without overriding the environment
func loadEnvFile() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Upstream defaults
	v.SetDefault("upstream.base_url", "https://api.live-server1.com")
	v.SetDefault("upstream.page_size", 100)
	v.SetDefault("upstream.max_pages", 50)
	v.SetDefault("upstream.max_retries", 2)
	v.SetDefault("upstream.retry_backoff", "500ms")
	v.SetDefault("upstream.request_timeout", "0s")
	v.SetDefault("upstream.requests_per_second", 0)

	// Catalog defaults
	v.SetDefault("catalog.ttl", "5m")
	v.SetDefault("catalog.failure_backoff", "30s")
	v.SetDefault("catalog.snapshot_path", "data/catalog-cache.json")
	v.SetDefault("catalog.fallback_path", "")
	v.SetDefault("catalog.delegate_paging", false)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "30s")

	// Paging defaults
	v.SetDefault("paging.default_page_size", 12)
	v.SetDefault("paging.max_page_size", 60)

	// Vendor defaults
	v.SetDefault("vendors.ttl", "5m")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 600)
}

// validate validates the configuration
func validate(config *Config) error {
	base, err := url.Parse(config.Upstream.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("upstream base URL must be absolute, got: %q", config.Upstream.BaseURL)
	}

	if config.Upstream.PageSize <= 0 || config.Upstream.MaxPages <= 0 {
		return fmt.Errorf("upstream page size and max pages must be positive")
	}

	if config.Upstream.MaxRetries < 0 || config.Upstream.RequestTimeout < 0 || config.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream retries, timeout and rate must not be negative")
	}

	if config.Catalog.TTL <= 0 {
		return fmt.Errorf("catalog TTL must be positive, got: %s", config.Catalog.TTL)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Paging.DefaultPageSize <= 0 || config.Paging.MaxPageSize < config.Paging.DefaultPageSize {
		return fmt.Errorf("paging sizes must satisfy 0 < default (%d) <= max (%d)",
			config.Paging.DefaultPageSize, config.Paging.MaxPageSize)
	}

	if config.RateLimit.PerIP < 0 {
		return fmt.Errorf("per-IP rate limit must not be negative")
	}

	return nil
}
