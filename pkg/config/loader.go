// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// secretKeys are usually injected through the environment rather than YAML.
var secretKeys = []string{
	"bot.token",
	"commerce.client_id",
	"commerce.client_secret",
	"redis.password",
	"sentry.dsn",
}

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	// Env files are optional.
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFile(fmt.Sprintf("./configs/%s.yaml", env), env)
}

// LoadFile reads the YAML file at path with environment overrides.
func LoadFile(path, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(validateTimeouts, Config{})
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, v, nil
}

// validateTimeouts keeps a handler from outliving its actor lock and gives a
// single commerce call room to finish inside the handler budget.
func validateTimeouts(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	if cfg.Session.HandlerTimeout >= cfg.Session.LockTTL {
		sl.ReportError(cfg.Session.HandlerTimeout, "Session.HandlerTimeout", "HandlerTimeout", "ltfield", "LockTTL")
	}
	if cfg.Commerce.Timeout > cfg.Session.HandlerTimeout {
		sl.ReportError(cfg.Commerce.Timeout, "Commerce.Timeout", "Timeout", "ltefield", "Session.HandlerTimeout")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "himera-shop")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file.max_size_mb", 100)
	v.SetDefault("logger.file.max_backups", 5)
	v.SetDefault("logger.file.max_age_days", 28)
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("commerce.timeout", 10*time.Second)
	v.SetDefault("commerce.retry_reads", true)
	v.SetDefault("session.lock_ttl", 30*time.Second)
	v.SetDefault("session.lock_wait", 10*time.Second)
	v.SetDefault("session.handler_timeout", 25*time.Second)
	v.SetDefault("rate_limit.per_user.limit", 30)
	v.SetDefault("rate_limit.per_user.window", "1m")
	v.SetDefault("rate_limit.cleanup_interval", 5*time.Minute)
	v.SetDefault("rate_limit.fallback_ratio", 0.5)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.cleanup_interval", time.Hour)
	v.SetDefault("catalog.cache_ttl", 10*time.Minute)
	v.SetDefault("catalog.product_ttl", 30*time.Second)
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("sentry.sample_rate", 1.0)
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WatchLogLevel re-reads logger.level whenever the config file changes.
func WatchLogLevel(v *viper.Viper, level *slog.LevelVar, log *slog.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		next := ParseLevel(v.GetString("logger.level"))
		if next == level.Level() {
			return
		}

		level.Set(next)
		if log != nil {
			log.Info("log level changed", slog.String("file", e.Name), slog.String("level", next.String()))
		}
	})
	v.WatchConfig()
}
