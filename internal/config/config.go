// Package config loads application configuration from file, environment
// and defaults, in that priority order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Search   SearchConfig   `mapstructure:"search"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	LiveTV   LiveTVConfig   `mapstructure:"livetv"`
	Usenet   UsenetConfig   `mapstructure:"usenet"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SearchConfig holds search orchestration settings.
type SearchConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheMaxSize  int           `mapstructure:"cache_max_size"`
	QueryLimit    int           `mapstructure:"query_limit"`
	QueryPeriod   time.Duration `mapstructure:"query_period"`
	HostRatePerS  float64       `mapstructure:"host_rate_per_s"`
	HostRateBurst int           `mapstructure:"host_rate_burst"`
}

// MetadataConfig holds TMDB settings.
type MetadataConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LiveTVConfig holds live TV streaming settings.
type LiveTVConfig struct {
	URLCacheMaxEntries int           `mapstructure:"url_cache_max_entries"`
	URLCacheHLSTTL     time.Duration `mapstructure:"url_cache_hls_ttl"`
	URLCacheDirectTTL  time.Duration `mapstructure:"url_cache_direct_ttl"`
	AllowPrivateHosts  bool          `mapstructure:"allow_private_hosts"`
}

// UsenetProviderConfig holds one NNTP provider's settings.
type UsenetProviderConfig struct {
	Name           string `mapstructure:"name"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	TLS            bool   `mapstructure:"tls"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	Priority       int    `mapstructure:"priority"`
}

// UsenetConfig holds usenet streaming settings.
type UsenetConfig struct {
	Providers []UsenetProviderConfig `mapstructure:"providers"`
	StrictCRC bool                   `mapstructure:"strict_crc"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8484,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Search: SearchConfig{
			Concurrency:   5,
			Timeout:       30 * time.Second,
			CacheTTL:      5 * time.Minute,
			CacheMaxSize:  500,
			QueryLimit:    100,
			QueryPeriod:   time.Hour,
			HostRatePerS:  1,
			HostRateBurst: 3,
		},
		Metadata: MetadataConfig{
			BaseURL: "https://api.themoviedb.org/3",
			Timeout: 15 * time.Second,
		},
		LiveTV: LiveTVConfig{
			URLCacheMaxEntries: 200,
			URLCacheHLSTTL:     time.Hour,
			URLCacheDirectTTL:  30 * time.Minute,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.cinephage")
	}

	v.SetEnvPrefix("CINEPHAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8484)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("search.concurrency", 5)
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.cache_ttl", "5m")
	v.SetDefault("search.cache_max_size", 500)
	v.SetDefault("search.query_limit", 100)
	v.SetDefault("search.query_period", "1h")
	v.SetDefault("search.host_rate_per_s", 1)
	v.SetDefault("search.host_rate_burst", 3)

	v.SetDefault("metadata.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("metadata.api_key", "")
	v.SetDefault("metadata.timeout", "15s")

	v.SetDefault("livetv.url_cache_max_entries", 200)
	v.SetDefault("livetv.url_cache_hls_ttl", "1h")
	v.SetDefault("livetv.url_cache_direct_ttl", "30m")
	v.SetDefault("livetv.allow_private_hosts", false)

	v.SetDefault("usenet.strict_crc", false)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
