package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fastquant.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
data:
  source: csv
  path: "testdata/prices.csv"
  delimiter: ","
  has_header: true
  strict: false
  symbol: "BTCUSDT"
execution:
  initial_capital: 50000
  default_slippage_bps: 5
  commission_per_unit: 0.1
  commission_bps: 10
strategies:
  - name: "ma-fast"
    type: moving_average
    short_window: 5
    long_window: 20
    order_qty: 2
  - name: "brk"
    type: breakout
    lookback: 10
    buffer: 0.5
    allow_short: true
reporter:
  json: "out/report.json"
  summary_csv: "out/summary.csv"
  print_summary: false
storage:
  data_dir: "/tmp/fastquant/data"
  sqlite_path: "/tmp/fastquant/fastquant.db"
server:
  host: "0.0.0.0"
  port: 9000
logging:
  level: "debug"
`)

	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("SQLITE_PATH")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Data.Source != "csv" || cfg.Data.Path != "testdata/prices.csv" {
		t.Errorf("unexpected data config: %+v", cfg.Data)
	}
	if !cfg.Data.HasHeaderOrDefault() {
		t.Error("has_header = false, want true")
	}
	if cfg.Execution.InitialCapital != 50000 {
		t.Errorf("InitialCapital = %v, want 50000", cfg.Execution.InitialCapital)
	}
	if cfg.Execution.DefaultSlippageBps != 5 || cfg.Execution.CommissionPerUnit != 0.1 || cfg.Execution.CommissionBps != 10 {
		t.Errorf("unexpected execution config: %+v", cfg.Execution)
	}
	if len(cfg.Strategies) != 2 {
		t.Fatalf("len(Strategies) = %d, want 2", len(cfg.Strategies))
	}
	if cfg.Strategies[0].Type != "moving_average" || cfg.Strategies[0].ShortWindow != 5 {
		t.Errorf("unexpected strategy[0]: %+v", cfg.Strategies[0])
	}
	if cfg.Strategies[1].Type != "breakout" || !cfg.Strategies[1].AllowShort {
		t.Errorf("unexpected strategy[1]: %+v", cfg.Strategies[1])
	}
	if cfg.Reporter.PrintSummaryOrDefault() {
		t.Error("print_summary = true, want false")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
data:
  path: "prices.csv"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Execution.InitialCapital != 100000 {
		t.Errorf("default InitialCapital = %v, want 100000", cfg.Execution.InitialCapital)
	}
	if cfg.Execution.DefaultSlippageBps != 0 || cfg.Execution.CommissionPerUnit != 0 || cfg.Execution.CommissionBps != 0 {
		t.Errorf("expected zero execution defaults, got %+v", cfg.Execution)
	}
	if !cfg.Data.HasHeaderOrDefault() {
		t.Error("default has_header = false, want true")
	}
	if !cfg.Reporter.PrintSummaryOrDefault() {
		t.Error("default print_summary = false, want true")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
storage:
  data_dir: "/orig"
`)

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATA_DIR", "/override")
	t.Setenv("APCA_API_KEY_ID", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Storage.DataDir != "/override" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/override")
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "env-key")
	}
}

func TestLoadRejectsBadSource(t *testing.T) {
	path := writeConfig(t, `
data:
  source: ftp
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted unknown data source")
	}
}

func TestLoadRejectsMissingStrategyType(t *testing.T) {
	path := writeConfig(t, `
strategies:
  - name: "x"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted strategy without type")
	}
}
