// Package daemon manages the dadbase daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/dadbase/dadbase/internal/infra/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. DADBASE_API_PORT.
const EnvPrefix = "DADBASE"

// Config holds all daemon configuration.
type Config struct {
	API         APIConfig         `toml:"api" envconfig:"API"`
	Store       StoreConfig       `toml:"store" envconfig:"STORE"`
	Progression ProgressionConfig `toml:"progression" envconfig:"PROGRESSION"`
	Scheduler   SchedulerConfig   `toml:"scheduler" envconfig:"SCHEDULER"`
	Telemetry   TelemetryConfig   `toml:"telemetry" envconfig:"TELEMETRY"`
	Logging     LoggingConfig     `toml:"logging" envconfig:"LOGGING"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host" envconfig:"HOST"`
	Port           int      `toml:"port" envconfig:"PORT"`
	CORSOrigins    []string `toml:"cors_origins" envconfig:"CORS_ORIGINS"`
	RequestTimeout string   `toml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	Websocket      bool     `toml:"websocket" envconfig:"WEBSOCKET"`
}

// StoreConfig controls where the SQLite database lives.
type StoreConfig struct {
	Dir string `toml:"dir" envconfig:"DIR"`
}

// ProgressionConfig tunes the engine.
type ProgressionConfig struct {
	Timezone        string `toml:"timezone" envconfig:"TIMEZONE"`
	LeaderboardSize int    `toml:"leaderboard_size" envconfig:"LEADERBOARD_SIZE"`
	DailyQuestCount int    `toml:"daily_quest_count" envconfig:"DAILY_QUEST_COUNT"`
	HistoryLimit    int    `toml:"history_limit" envconfig:"HISTORY_LIMIT"`
	CatalogFile     string `toml:"catalog_file" envconfig:"CATALOG_FILE"`
}

// SchedulerConfig controls the background cron jobs.
type SchedulerConfig struct {
	Enabled      bool   `toml:"enabled" envconfig:"ENABLED"`
	RolloverCron string `toml:"rollover_cron" envconfig:"ROLLOVER_CRON"`
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus" envconfig:"PROMETHEUS"`
	HealthInterval string `toml:"health_interval" envconfig:"HEALTH_INTERVAL"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level" envconfig:"LEVEL"`
	Format string `toml:"format" envconfig:"FORMAT"` // text | json
	File   string `toml:"file" envconfig:"FILE"`     // empty = stderr
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := dadbaseHome()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RequestTimeout: "30s",
			Websocket:      true,
		},
		Store: StoreConfig{
			Dir: homeDir,
		},
		Progression: ProgressionConfig{
			Timezone:        "Local",
			LeaderboardSize: 50,
			DailyQuestCount: 3,
			HistoryLimit:    90,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			RolloverCron: scheduler.DefaultRolloverSpec,
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads config from $DADBASE_HOME/config.toml, falling back to
// defaults, then applies DADBASE_* environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom is LoadConfig with an explicit file path. A missing file is
// not an error.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if _, err := c.Progression.Location(); err != nil {
		return err
	}
	if c.Progression.LeaderboardSize < 0 || c.Progression.DailyQuestCount < 0 || c.Progression.HistoryLimit < 0 {
		return fmt.Errorf("progression sizes must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q: want text or json", c.Logging.Format)
	}
	return nil
}

// Location resolves the configured timezone. Empty means Local.
func (p ProgressionConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("progression.timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// SaveConfig writes the config to $DADBASE_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath is where LoadConfig and SaveConfig look.
func ConfigPath() string {
	return filepath.Join(dadbaseHome(), "config.toml")
}

// dadbaseHome returns the dadbase data directory.
func dadbaseHome() string {
	if env := os.Getenv("DADBASE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dadbase")
}

// Home is exported for use by other packages.
func Home() string {
	return dadbaseHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
