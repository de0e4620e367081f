package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/user/priceharvest/internal/site"
)

// Config stores all configuration for one harvest run. Every knob has a
// default so the binary runs with nothing but POSTGRES_URL set.
type Config struct {
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisDB     int    `mapstructure:"REDIS_DB"`
	ServerPort  string `mapstructure:"SERVER_PORT"`

	Headless bool `mapstructure:"HEADLESS"`

	MaxWorkers   int `mapstructure:"MAX_WORKERS"`
	RetryWorkers int `mapstructure:"RETRY_WORKERS"`
	MaxWaves     int `mapstructure:"MAX_WAVES"`

	DiscoveryAttempts      int `mapstructure:"DISCOVERY_ATTEMPTS"`
	DiscoveryRetryDelaySec int `mapstructure:"DISCOVERY_RETRY_DELAY_SECONDS"`
	RetryCooldownSec       int `mapstructure:"RETRY_COOLDOWN_SECONDS"`
	PageLoadTimeoutSec     int `mapstructure:"PAGE_LOAD_TIMEOUT_SECONDS"`
	SelectorTimeoutSec     int `mapstructure:"SELECTOR_TIMEOUT_SECONDS"`
	JitterMinMs            int `mapstructure:"JITTER_MIN_MS"`
	JitterMaxMs            int `mapstructure:"JITTER_MAX_MS"`
	FailedPreview          int `mapstructure:"FAILED_PREVIEW"`

	// CategoryURLs overrides the built-in category list, comma-separated.
	CategoryURLs string `mapstructure:"CATEGORY_URLS"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `mapstructure:"TELEGRAM_CHAT_ID"`
}

// Load reads configuration from a .env file or environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// The .env file is optional; production configures purely through the
	// environment.
	_ = v.ReadInConfig()

	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("HEADLESS", true)
	v.SetDefault("MAX_WORKERS", 10)
	v.SetDefault("RETRY_WORKERS", 5)
	v.SetDefault("MAX_WAVES", 5)
	v.SetDefault("DISCOVERY_ATTEMPTS", 3)
	v.SetDefault("DISCOVERY_RETRY_DELAY_SECONDS", 3)
	v.SetDefault("RETRY_COOLDOWN_SECONDS", 5)
	v.SetDefault("PAGE_LOAD_TIMEOUT_SECONDS", 60)
	v.SetDefault("SELECTOR_TIMEOUT_SECONDS", 10)
	v.SetDefault("JITTER_MIN_MS", 1000)
	v.SetDefault("JITTER_MAX_MS", 1500)
	v.SetDefault("FAILED_PREVIEW", 5)
	v.SetDefault("CATEGORY_URLS", "")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Categories returns the configured category URLs, falling back to the
// built-in site list.
func (c *Config) Categories() []string {
	if strings.TrimSpace(c.CategoryURLs) == "" {
		return site.DefaultCategories
	}
	parts := strings.Split(c.CategoryURLs, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

func (c *Config) DiscoveryRetryDelay() time.Duration {
	return time.Duration(c.DiscoveryRetryDelaySec) * time.Second
}

func (c *Config) RetryCooldown() time.Duration {
	return time.Duration(c.RetryCooldownSec) * time.Second
}

func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutSec) * time.Second
}

func (c *Config) SelectorTimeout() time.Duration {
	return time.Duration(c.SelectorTimeoutSec) * time.Second
}

func (c *Config) JitterMin() time.Duration {
	return time.Duration(c.JitterMinMs) * time.Millisecond
}

func (c *Config) JitterMax() time.Duration {
	return time.Duration(c.JitterMaxMs) * time.Millisecond
}
