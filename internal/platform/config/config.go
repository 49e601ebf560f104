package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	AdminAPIToken string `env:"ADMIN_API_TOKEN"`

	// ContactEncryptionKey is a hex-encoded 32-byte AES key; empty stores contacts in plaintext.
	ContactEncryptionKey string `env:"CONTACT_ENCRYPTION_KEY"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	ClassifierAdjustmentWeight  float64 `env:"CLASSIFIER_ADJUSTMENT_WEIGHT" default:"0.1"`
	ClassifierCategoryThreshold float64 `env:"CLASSIFIER_CATEGORY_THRESHOLD" default:"0.02"`

	TrendingWindow    time.Duration `env:"TRENDING_WINDOW" default:"24h"`
	TrendingThreshold int           `env:"TRENDING_THRESHOLD" default:"10"`
	TrendingInterval  time.Duration `env:"TRENDING_INTERVAL" default:"5m"`

	VoteDedupeTTL time.Duration `env:"VOTE_DEDUPE_TTL" default:"720h"` // 30 days

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"10"`
	// RateLimitShared keeps buckets in Redis so every instance enforces one limit.
	RateLimitShared bool `env:"RATE_LIMIT_SHARED" default:"true"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"ADMIN_API_TOKEN", cfg.AdminAPIToken},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.AdminAPIToken) < 16 {
		return errors.New("ADMIN_API_TOKEN must be at least 16 characters")
	}

	switch cfg.LogFormat {
	case "text", "json", "tint":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of text, json, tint, got %q", cfg.LogFormat)
	}

	if cfg.ClassifierAdjustmentWeight < 0 || cfg.ClassifierAdjustmentWeight > 1 {
		return fmt.Errorf("CLASSIFIER_ADJUSTMENT_WEIGHT must be in [0, 1], got %v", cfg.ClassifierAdjustmentWeight)
	}
	if cfg.ClassifierCategoryThreshold <= 0 || cfg.ClassifierCategoryThreshold > 1 {
		return fmt.Errorf("CLASSIFIER_CATEGORY_THRESHOLD must be in (0, 1], got %v", cfg.ClassifierCategoryThreshold)
	}

	if cfg.TrendingWindow <= 0 || cfg.TrendingInterval <= 0 {
		return errors.New("TRENDING_WINDOW and TRENDING_INTERVAL must be positive")
	}
	if cfg.TrendingThreshold < 1 {
		return errors.New("TRENDING_THRESHOLD must be at least 1")
	}
	if cfg.VoteDedupeTTL <= 0 {
		return errors.New("VOTE_DEDUPE_TTL must be positive")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst < 1 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	if cfg.ContactEncryptionKey != "" {
		if _, err := hex.DecodeString(cfg.ContactEncryptionKey); err != nil || len(cfg.ContactEncryptionKey) != 64 {
			return errors.New("CONTACT_ENCRYPTION_KEY must be 64 hex characters")
		}
	}

	if cfg.IsProduction() {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
