package config

import (
	"time"

	appredis "github.com/Proton-105/himera-shop/pkg/redis"
)

// Config holds runtime configuration for the shop bot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	App         AppConfig         `mapstructure:"app"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Bot         BotConfig         `mapstructure:"bot"`
	Redis       appredis.Config   `mapstructure:"redis"`
	Commerce    CommerceConfig    `mapstructure:"commerce"`
	Session     SessionConfig     `mapstructure:"session"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Server      ServerConfig      `mapstructure:"server"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type LoggerConfig struct {
	Level  string        `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotating log file.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type BotConfig struct {
	Token   string        `mapstructure:"token" validate:"required"`
	Mode    string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout time.Duration `mapstructure:"timeout"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Listen    string `mapstructure:"listen"`
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url"`
}

type CommerceConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"omitempty,url"`
	AuthURL      string        `mapstructure:"auth_url" validate:"omitempty,url"`
	ClientID     string        `mapstructure:"client_id" validate:"required"`
	ClientSecret string        `mapstructure:"client_secret" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryReads   bool          `mapstructure:"retry_reads"`
}

// SessionConfig controls conversation persistence and per-user locking.
type SessionConfig struct {
	// StateTTL expires idle conversations. Zero keeps them forever.
	StateTTL time.Duration `mapstructure:"state_ttl"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	LockWait time.Duration `mapstructure:"lock_wait"`

	// HandlerTimeout bounds one event while its actor lock is held. It must
	// stay below LockTTL and at or above commerce.timeout.
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"gt=0"`
}

// RateLimitRule is a limit per window, for example 30 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enabled         bool                     `mapstructure:"enabled"`
	PerUser         RateLimitRule            `mapstructure:"per_user"`
	Selections      map[string]RateLimitRule `mapstructure:"selections"`
	Whitelist       []int64                  `mapstructure:"whitelist"`
	CleanupInterval time.Duration            `mapstructure:"cleanup_interval"`

	// FallbackRatio scales limits while they are enforced in memory.
	FallbackRatio float64 `mapstructure:"fallback_ratio" validate:"gte=0,lte=1"`
}

type IdempotencyConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type CatalogConfig struct {
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`

	// ProductTTL caches product cards (price, stock). Zero always asks upstream.
	ProductTTL time.Duration `mapstructure:"product_ttl" validate:"gte=0,ltefield=CacheTTL"`

	// RefreshCron schedules background cache refreshes; empty disables them.
	RefreshCron string `mapstructure:"refresh_cron"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}
