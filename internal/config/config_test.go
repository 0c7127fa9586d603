package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
storage:
  sqlite_path: "/tmp/desk.db"
  archive_dir: "/tmp/archive"
server:
  host: "0.0.0.0"
  port: 9000
alpaca:
  api_key: "file-key"
  api_secret: "file-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
logging:
  level: "debug"
trading:
  workers: 4
  poll_interval_secs: 2
  buy_timeout_secs: 30
  stop_loss_pct: 0.03
risk:
  min_combined: 200000
  max_available: 500000
  initial_available: 250000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradedesk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.SQLitePath != "/tmp/desk.db" {
		t.Errorf("SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/desk.db")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Alpaca.BaseURL != "https://paper-api.alpaca.markets" {
		t.Errorf("Alpaca.BaseURL = %q, want %q", cfg.Alpaca.BaseURL, "https://paper-api.alpaca.markets")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Trading.Workers != 4 {
		t.Errorf("Trading.Workers = %d, want 4", cfg.Trading.Workers)
	}
	if cfg.Trading.BuyTimeoutSecs != 30 {
		t.Errorf("Trading.BuyTimeoutSecs = %d, want 30", cfg.Trading.BuyTimeoutSecs)
	}
	if cfg.Risk.MinCombined != 200000 {
		t.Errorf("Risk.MinCombined = %v, want 200000", cfg.Risk.MinCombined)
	}
}

func TestLoadDefaults(t *testing.T) {
	// A sparse file should keep defaults for everything it omits.
	cfg, err := Load(writeConfig(t, "server:\n  port: 7070\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Trading.Workers != 10 {
		t.Errorf("default Trading.Workers = %d, want 10", cfg.Trading.Workers)
	}
	if cfg.Trading.ExitTimeoutSecs != 300 {
		t.Errorf("default Trading.ExitTimeoutSecs = %d, want 300", cfg.Trading.ExitTimeoutSecs)
	}
	if cfg.Risk.MinCombined != 100000 || cfg.Risk.MaxAvailable != 450000 {
		t.Errorf("default risk limits = %v/%v, want 100000/450000",
			cfg.Risk.MinCombined, cfg.Risk.MaxAvailable)
	}
	if !cfg.Trading.PaperMode {
		t.Error("default Trading.PaperMode should be true")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SQLITE_PATH", "/env/desk.db")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("APCA_API_KEY_ID", "canonical-key")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.SQLitePath != "/env/desk.db" {
		t.Errorf("SQLitePath = %q, want env override", cfg.Storage.SQLitePath)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	// Canonical APCA vars win over both the file and ALPACA_API_KEY.
	if cfg.Alpaca.APIKey != "canonical-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "canonical-key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load on a missing file should fail")
	}
}
