// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Images  ImagesConfig  `mapstructure:"images"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the menu crawl pipeline.
type CrawlerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	SectionDelayMs int    `mapstructure:"section_delay_ms"`
}

// ImagesConfig governs image downloads and the static asset directory.
type ImagesConfig struct {
	Dir             string `mapstructure:"dir"`
	MaxBytes        int64  `mapstructure:"max_bytes"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	DownloadDelayMs int    `mapstructure:"download_delay_ms"`
	MaxRetries      int    `mapstructure:"max_retries"`
	RetentionHours  int    `mapstructure:"retention_hours"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MENUCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	// Keys without a meaningful default still need registration, or
	// AutomaticEnv never surfaces them to Unmarshal.
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("crawler.base_url", "https://nsm-22.ru/")
	v.SetDefault("crawler.user_agent", "menu-crawler-bot/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.section_delay_ms", 500)
	v.SetDefault("images.dir", "./static/uploads")
	v.SetDefault("images.max_bytes", 500*1024)
	v.SetDefault("images.timeout_seconds", 10)
	v.SetDefault("images.download_delay_ms", 1000)
	v.SetDefault("images.max_retries", 3)
	v.SetDefault("images.retention_hours", 24)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url must be set")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.SectionDelayMs < 0 {
		return fmt.Errorf("crawler.section_delay_ms must be >= 0")
	}
	if c.Images.Dir == "" {
		return fmt.Errorf("images.dir must be set")
	}
	if c.Images.MaxBytes <= 0 {
		return fmt.Errorf("images.max_bytes must be > 0")
	}
	if c.Images.TimeoutSeconds <= 0 {
		return fmt.Errorf("images.timeout_seconds must be > 0")
	}
	if c.Images.MaxRetries <= 0 {
		return fmt.Errorf("images.max_retries must be > 0")
	}
	if c.Images.RetentionHours <= 0 {
		return fmt.Errorf("images.retention_hours must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// CrawlTimeout returns the per-request timeout for page fetches.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// SectionDelay returns the pacing delay between section fetches.
func (c Config) SectionDelay() time.Duration {
	return time.Duration(c.Crawler.SectionDelayMs) * time.Millisecond
}

// ImageTimeout returns the per-request timeout for image downloads.
func (c Config) ImageTimeout() time.Duration {
	return time.Duration(c.Images.TimeoutSeconds) * time.Second
}

// DownloadDelay returns the pacing delay between successive image downloads.
func (c Config) DownloadDelay() time.Duration {
	return time.Duration(c.Images.DownloadDelayMs) * time.Millisecond
}

// Retention returns the cleanup retention window for finished queue items.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Images.RetentionHours) * time.Hour
}
