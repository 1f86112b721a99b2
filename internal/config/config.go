package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseURLEnv is the variable the storefront has always read the upstream URL from.
const BaseURLEnv = "WA_HEADLESS_BASE_URL"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Search   SearchConfig   `mapstructure:"search"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Reindex  ReindexConfig  `mapstructure:"reindex"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// UpstreamConfig holds the headless catalog API configuration
type UpstreamConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	Timeout              int    `mapstructure:"timeout"` // Seconds per call
	MaxRequestsPerSecond int    `mapstructure:"max_requests_per_second"`
	MediaBaseURL         string `mapstructure:"media_base_url"`
}

// MediaOrigin is where product images are served from: MediaBaseURL when
// set, else the scheme and host of BaseURL.
func (u UpstreamConfig) MediaOrigin() string {
	if u.MediaBaseURL != "" {
		return strings.TrimRight(u.MediaBaseURL, "/")
	}
	parsed, err := url.Parse(u.BaseURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// CacheConfig holds response cache TTLs in seconds
type CacheConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Size        int  `mapstructure:"size"`
	CategoryTTL int  `mapstructure:"category_ttl"`
	ListingTTL  int  `mapstructure:"listing_ttl"`
	ProductTTL  int  `mapstructure:"product_ttl"`
	SearchTTL   int  `mapstructure:"search_ttl"`
}

// SearchConfig holds the search index configuration
type SearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Limit     int      `mapstructure:"limit"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
}

// ReindexConfig holds the batch reindex settings
type ReindexConfig struct {
	Workers    int `mapstructure:"workers"`
	PageSize   int `mapstructure:"page_size"`
	MaxRetries int `mapstructure:"max_retries"`
	IdleRounds int `mapstructure:"idle_rounds"`
	SaveEvery  int `mapstructure:"save_every"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ConfigurationError reports a missing or invalid required setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

// IsConfigurationError reports whether err is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Load loads configuration from an optional YAML file with .env and
// environment variable overrides, and validates it.
func Load() (*Config, error) {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if config.Upstream.BaseURL == "" {
		config.Upstream.BaseURL = strings.TrimSpace(os.Getenv(BaseURLEnv))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate is the single fail-fast point for required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return &ConfigurationError{Key: "upstream.base_url", Reason: "is not set (or " + BaseURLEnv + ")"}
	}
	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return &ConfigurationError{Key: "upstream.base_url", Reason: "must be an http(s) URL"}
	}
	if c.Upstream.MaxRequestsPerSecond < 0 {
		return &ConfigurationError{Key: "upstream.max_requests_per_second", Reason: "must not be negative"}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.timeout", 8)
	v.SetDefault("upstream.max_requests_per_second", 0)
	v.SetDefault("upstream.media_base_url", "")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 2048)
	v.SetDefault("cache.category_ttl", 3600)
	v.SetDefault("cache.listing_ttl", 60)
	v.SetDefault("cache.product_ttl", 300)
	v.SetDefault("cache.search_ttl", 60)

	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "products")
	v.SetDefault("search.limit", 10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "storefront")
	v.SetDefault("database.user", "storefront_user")
	v.SetDefault("database.password", "storefront_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "storefront_reindex")
	v.SetDefault("redis.min_idle_time", 120)

	v.SetDefault("reindex.workers", 4)
	v.SetDefault("reindex.page_size", 100)
	v.SetDefault("reindex.max_retries", 3)
	v.SetDefault("reindex.idle_rounds", 3)
	v.SetDefault("reindex.save_every", 5)

	v.SetDefault("log.level", "info")
}
