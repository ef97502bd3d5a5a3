package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Config keeps runtime settings for the tracker.
type Config struct {
	TelegramToken    string   `yaml:"telegram_token"`
	DatabaseDriver   string   `yaml:"database_driver"`
	DatabaseURL      string   `yaml:"database_url"`
	Timezone         string   `yaml:"timezone"`
	DailyRankingTime string   `yaml:"daily_ranking_time"`
	SuperAdmins      []string `yaml:"super_admins"`
	LogLevel         string   `yaml:"log_level"`
	LogPretty        bool     `yaml:"log_pretty"`
	HTTPAddr         string   `yaml:"http_addr"`
	NotifyRatePerSec int      `yaml:"notify_rate_per_sec"`
	DryRun           bool     `yaml:"dry_run"`

	Location *time.Location `yaml:"-"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads configuration from .env, an optional YAML file named by
// PKTRACKER_CONFIG and the environment, in that order of precedence (lowest first).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("PKTRACKER_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, cfg.validate()
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.DatabaseDriver, "DATABASE_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Timezone, "TIMEZONE")
	setString(&cfg.DailyRankingTime, "DAILY_RANKING_TIME")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setBool(&cfg.LogPretty, "LOG_PRETTY")
	setBool(&cfg.DryRun, "PKTRACKER_DRY_RUN")

	if v := env("SUPER_ADMINS"); v != "" {
		cfg.SuperAdmins = splitList(v)
	}
	if v := env("NOTIFY_RATE_PER_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NotifyRatePerSec = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DriverSQLite
	}
	if cfg.DatabaseURL == "" && cfg.DatabaseDriver == DriverSQLite {
		cfg.DatabaseURL = "pktracker.db"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Shanghai"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.NotifyRatePerSec <= 0 {
		cfg.NotifyRatePerSec = 3
	}
}

func (cfg *Config) validate() error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for postgres")
	}

	if cfg.DailyRankingTime != "" {
		if _, _, err := ParseClock(cfg.DailyRankingTime); err != nil {
			return fmt.Errorf("invalid DAILY_RANKING_TIME: %w", err)
		}
	}

	if cfg.TelegramToken == "" && !cfg.DryRun {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	return nil
}

// ParseClock validates an HH:MM string.
func ParseClock(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := env(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
