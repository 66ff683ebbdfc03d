// Package config loads service settings from the environment and an optional
// config.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"scheduling-service/internal/models"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Identity.
	JWTSecret    string `mapstructure:"JWT_HMAC_SECRET"`
	StaticTokens string `mapstructure:"STATIC_TOKENS"`

	// Google Calendar OAuth client.
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`

	// Redis configuration.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int           `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int           `mapstructure:"REDIS_QUEUE_DB"`
	BusyCacheTTL  time.Duration `mapstructure:"BUSY_CACHE_TTL"`

	DefaultTimezone    string `mapstructure:"DEFAULT_TIMEZONE"`
	DefaultSlotMinutes int    `mapstructure:"DEFAULT_SLOT_MINUTES"`
	QuotaFreeMonthly   int    `mapstructure:"QUOTA_FREE_MONTHLY"`
	QuotaProMonthly    int    `mapstructure:"QUOTA_PRO_MONTHLY"`

	RateLimitPerMin           int    `mapstructure:"RATE_LIMIT_PER_MIN"`
	CORSOrigins               string `mapstructure:"CORS_ORIGINS"`
	AttendeeLookupConcurrency int    `mapstructure:"ATTENDEE_LOOKUP_CONCURRENCY"`

	ReconcileInterval  string        `mapstructure:"RECONCILE_INTERVAL"`
	ReconcileLookahead time.Duration `mapstructure:"RECONCILE_LOOKAHEAD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_HMAC_SECRET", "")
	v.SetDefault("STATIC_TOKENS", "")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_QUEUE_DB", 1)
	v.SetDefault("BUSY_CACHE_TTL", "60s")
	v.SetDefault("DEFAULT_TIMEZONE", "UTC")
	v.SetDefault("DEFAULT_SLOT_MINUTES", 30)
	v.SetDefault("QUOTA_FREE_MONTHLY", 25)
	v.SetDefault("QUOTA_PRO_MONTHLY", 0)
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("ATTENDEE_LOOKUP_CONCURRENCY", 8)
	v.SetDefault("RECONCILE_INTERVAL", "@every 15m")
	v.SetDefault("RECONCILE_LOOKAHEAD", "720h")
}

// Load reads config.yaml from the working directory or ./config when present,
// then lets environment variables override it.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	if !models.ValidDuration(c.DefaultSlotMinutes) {
		return fmt.Errorf("DEFAULT_SLOT_MINUTES: %d is not one of %v", c.DefaultSlotMinutes, models.MeetingDurations)
	}
	if c.QuotaFreeMonthly < 0 || c.QuotaProMonthly < 0 {
		return errors.New("monthly quotas must not be negative")
	}
	if c.RateLimitPerMin <= 0 {
		return errors.New("RATE_LIMIT_PER_MIN must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the fallback timezone for hosts without one.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) Quotas() map[models.Plan]int {
	return map[models.Plan]int{
		models.PlanFree: c.QuotaFreeMonthly,
		models.PlanPro:  c.QuotaProMonthly,
	}
}

// Tokens splits STATIC_TOKENS, dropping blanks.
func (c Config) Tokens() []string {
	return splitList(c.StaticTokens)
}

func (c Config) Origins() []string {
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
