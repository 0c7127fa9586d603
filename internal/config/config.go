// Package config loads the tradedesk YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradedesk engine.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Logging Logging       `yaml:"logging"`
	Trading TradingConfig `yaml:"trading"`
	Risk    RiskConfig    `yaml:"risk"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ArchiveDir string `yaml:"archive_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TradingConfig defines execution parameters for the order engine.
type TradingConfig struct {
	PaperMode         bool    `yaml:"paper_mode"`
	Workers           int     `yaml:"workers"`
	PollIntervalSecs  int     `yaml:"poll_interval_secs"`
	BuyTimeoutSecs    int     `yaml:"buy_timeout_secs"`
	AdjustTimeoutSecs int     `yaml:"adjust_timeout_secs"`
	ExitTimeoutSecs   int     `yaml:"exit_timeout_secs"`
	StopLossPct       float64 `yaml:"stop_loss_pct"`
	TargetPct         float64 `yaml:"target_pct"`
}

// PollInterval returns the monitor poll interval as a duration.
func (t TradingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSecs) * time.Second
}

// RiskConfig defines the risk-pool floor, cap, and initial seeding.
type RiskConfig struct {
	MinCombined      float64 `yaml:"min_combined"`
	MaxAvailable     float64 `yaml:"max_available"`
	InitialAvailable float64 `yaml:"initial_available"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with working defaults. Load starts from
// these so a sparse YAML file still yields a runnable configuration.
func Default() *Config {
	return &Config{
		Storage: Storage{
			SQLitePath: "tradedesk.db",
			ArchiveDir: "data",
		},
		Server: Server{Host: "127.0.0.1", Port: 8089},
		Alpaca: Alpaca{
			BaseURL:         "https://paper-api.alpaca.markets",
			DataURL:         "https://data.alpaca.markets",
			RateLimitPerMin: 180,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Trading: TradingConfig{
			PaperMode:         true,
			Workers:           10,
			PollIntervalSecs:  1,
			BuyTimeoutSecs:    60,
			AdjustTimeoutSecs: 120,
			ExitTimeoutSecs:   300,
			StopLossPct:       0.05,
			TargetPct:         0.10,
		},
		Risk: RiskConfig{
			MinCombined:      100000,
			MaxAvailable:     450000,
			InitialAvailable: 150000,
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars win last; these are the canonical names the
	// SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
