package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration for both the API and the runner.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Runner   RunnerConfig   `yaml:"runner"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// EngineConfig holds the notification engine windows and bounds.
type EngineConfig struct {
	SignalFetchLimit     int `yaml:"signal_fetch_limit"`
	LeadFetchLimit       int `yaml:"lead_fetch_limit"`
	LapseDays            int `yaml:"lapse_days"`
	CoolOffDays          int `yaml:"cool_off_days"`
	ReminderLookbackDays int `yaml:"reminder_lookback_days"`
	DispatchPerSecond    int `yaml:"dispatch_per_second"`
}

// RunnerConfig drives the scheduled sweep.
type RunnerConfig struct {
	Schedule          string `yaml:"schedule"`
	ProviderLimit     int    `yaml:"provider_limit"`
	RunTimeoutSeconds int    `yaml:"run_timeout_seconds"`
}

// RunTimeout returns the per-sweep deadline.
func (c RunnerConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Engine: EngineConfig{
			SignalFetchLimit:     500,
			LeadFetchLimit:       2000,
			LapseDays:            30,
			CoolOffDays:          14,
			ReminderLookbackDays: 30,
			DispatchPerSecond:    20,
		},
		Runner: RunnerConfig{
			Schedule:          "*/15 * * * *",
			ProviderLimit:     500,
			RunTimeoutSeconds: 120,
		},
		Log: LogConfig{Level: "info", Console: false},
	}
}

// Load reads the YAML file at path over the defaults. An empty path keeps
// the defaults. DATABASE_URL in the environment always wins over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.URL = dsn
	}
	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("config: database url is required (set database.url or DATABASE_URL)")
	}
	// A zero rate limiter blocks dispatch forever.
	if cfg.Engine.DispatchPerSecond <= 0 {
		cfg.Engine.DispatchPerSecond = Default().Engine.DispatchPerSecond
	}
	return cfg, nil
}
