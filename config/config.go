package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"
)

// Config holds all the configuration for the application
type Config struct {
	BotToken             string
	DatabasePath         string
	SurveyPath           string
	Location             *time.Location
	StoreTimeout         time.Duration
	ReconcileTimeout     time.Duration
	ReconcileParallelism int
	AllowOutOfOrder      bool
	Debug                bool
}

// ErrMissingToken is returned by RequireBotToken when BOT_TOKEN is unset.
var ErrMissingToken = errors.New("BOT_TOKEN environment variable is required")

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:     os.Getenv("BOT_TOKEN"),
		DatabasePath: envOr("DB_PATH", "./data/survey.db"),
		SurveyPath:   os.Getenv("SURVEY_PATH"),
	}

	var err error
	if cfg.Location, err = time.LoadLocation(envOr("TIMEZONE", "UTC")); err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	if cfg.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileTimeout, err = durationEnv("RECONCILE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileParallelism, err = intEnv("RECONCILE_PARALLELISM", 4); err != nil {
		return nil, err
	}
	if cfg.ReconcileParallelism < 1 {
		return nil, fmt.Errorf("RECONCILE_PARALLELISM must be at least 1, got %d", cfg.ReconcileParallelism)
	}
	if cfg.AllowOutOfOrder, err = boolEnv("ALLOW_OUT_OF_ORDER", false); err != nil {
		return nil, err
	}
	if cfg.Debug, err = boolEnv("DEBUG", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireBotToken fails when no bot token is configured.
func (c *Config) RequireBotToken() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
