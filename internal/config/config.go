// Package config loads server configuration from a YAML file and POLAR_
// environment variables, environment taking precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	// ListenAddr is the HTTP bind address for the webhook server.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// DatabasePath is the SQLite database file. ":memory:" runs ephemeral.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	GitHub GitHubConfig `mapstructure:"github" yaml:"github"`
	Badge  BadgeConfig  `mapstructure:"badge" yaml:"badge"`
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker"`
	Crawl  CrawlConfig  `mapstructure:"crawl" yaml:"crawl"`
}

// GitHubConfig holds the GitHub App credentials.
type GitHubConfig struct {
	// AppID is the GitHub App's numeric identifier.
	AppID int64 `mapstructure:"app_id" yaml:"app_id"`
	// PrivateKeyPath points at the app's PEM key file.
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path"`
	// WebhookSecret signs inbound deliveries.
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
}

// BadgeConfig controls funding badge embedding.
type BadgeConfig struct {
	// Label is the issue label that triggers badge embedding.
	Label string `mapstructure:"label" yaml:"label"`
	// BaseURL is the funding site badge links point at.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// WorkerConfig sizes the task pool.
type WorkerConfig struct {
	Count      int `mapstructure:"count" yaml:"count"`
	QueueDepth int `mapstructure:"queue_depth" yaml:"queue_depth"`
}

// CrawlConfig tunes the periodic sweeps.
type CrawlConfig struct {
	IssueStaleness     time.Duration `mapstructure:"issue_staleness" yaml:"issue_staleness"`
	ReferenceStaleness time.Duration `mapstructure:"reference_staleness" yaml:"reference_staleness"`
	BatchLimit         int           `mapstructure:"batch_limit" yaml:"batch_limit"`
	RateLimitFloor     int           `mapstructure:"rate_limit_floor" yaml:"rate_limit_floor"`
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables use the POLAR_ prefix with underscores,
// for example POLAR_GITHUB_WEBHOOK_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8000")
	// Keys must be known to viper for AutomaticEnv to reach Unmarshal, so the
	// credential fields get explicit empty defaults.
	v.SetDefault("github.app_id", 0)
	v.SetDefault("github.private_key_path", "")
	v.SetDefault("github.webhook_secret", "")
	v.SetDefault("database_path", "polar.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("badge.label", "polar")
	v.SetDefault("badge.base_url", "https://polar.sh")
	v.SetDefault("worker.count", 8)
	v.SetDefault("worker.queue_depth", 1024)
	v.SetDefault("crawl.issue_staleness", 24*time.Hour)
	v.SetDefault("crawl.reference_staleness", 24*time.Hour)
	v.SetDefault("crawl.batch_limit", 100)
	v.SetDefault("crawl.rate_limit_floor", 1000)

	v.SetEnvPrefix("POLAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// PrivateKey reads the GitHub App PEM key.
func (c *GitHubConfig) PrivateKey() ([]byte, error) {
	if c.PrivateKeyPath == "" {
		return nil, fmt.Errorf("github.private_key_path is not set")
	}
	key, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return key, nil
}

// Validate checks the fields serve cannot run without.
func (c *Config) Validate() error {
	if c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("github.webhook_secret is required")
	}
	if c.GitHub.AppID == 0 {
		return fmt.Errorf("github.app_id is required")
	}
	return nil
}
