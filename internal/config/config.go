// Package config loads the YAML configuration for the fastquant platform
// and applies environment variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the fastquant platform.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Reporter   ReporterConfig   `yaml:"reporter"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Alpaca     AlpacaConfig     `yaml:"alpaca"`
}

// DataConfig selects and configures the bar source for a run.
type DataConfig struct {
	// Source is one of "csv", "api", or "alpaca".
	Source string `yaml:"source"`

	// CSV source settings.
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
	HasHeader *bool  `yaml:"has_header"`
	Strict    bool   `yaml:"strict"`

	// API source settings.
	Endpoint  string            `yaml:"endpoint"`
	Query     map[string]string `yaml:"query"`
	Headers   map[string]string `yaml:"headers"`
	DataField string            `yaml:"data_field"`
	Fields    FieldMapConfig    `yaml:"fields"`

	// Symbol is the fallback instrument for sources that do not carry one
	// per candle (also the symbol requested from the alpaca source).
	Symbol string `yaml:"symbol"`

	// Alpaca source date range, YYYY-MM-DD.
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// FieldMapConfig maps candle fields to JSON object keys or array indices in
// an API payload.
type FieldMapConfig struct {
	Timestamp string `yaml:"timestamp"`
	Open      string `yaml:"open"`
	High      string `yaml:"high"`
	Low       string `yaml:"low"`
	Close     string `yaml:"close"`
	Volume    string `yaml:"volume"`
	Symbol    string `yaml:"symbol"`
}

// ExecutionConfig holds the fill-simulation parameters.
type ExecutionConfig struct {
	InitialCapital     float64 `yaml:"initial_capital"`
	DefaultSlippageBps float64 `yaml:"default_slippage_bps"`
	CommissionPerUnit  float64 `yaml:"commission_per_unit"`
	CommissionBps      float64 `yaml:"commission_bps"`
}

// StrategyConfig describes one strategy instance to run.
type StrategyConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// moving_average parameters.
	ShortWindow int `yaml:"short_window"`
	LongWindow  int `yaml:"long_window"`

	// breakout parameters.
	Lookback   int     `yaml:"lookback"`
	Buffer     float64 `yaml:"buffer"`
	AllowShort bool    `yaml:"allow_short"`

	// OrderQty is the quantity of each emitted order, shared by all types.
	OrderQty float64 `yaml:"order_qty"`
}

// ReporterConfig selects which report artifacts to write after a run.
// Paths are templates: for multi-strategy runs the strategy name is appended
// before the extension.
type ReporterConfig struct {
	JSONPath       string `yaml:"json"`
	SummaryCSVPath string `yaml:"summary_csv"`
	TradesCSVPath  string `yaml:"trades_csv"`
	PrintSummary   *bool  `yaml:"print_summary"`
}

// StorageConfig holds paths for data persistence.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig holds network listener configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AlpacaConfig holds credentials and endpoints for the Alpaca market-data API.
type AlpacaConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with the documented defaults: an
// initial capital of 100000 and zero slippage and commissions.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Source:    "csv",
			Delimiter: ",",
		},
		Execution: ExecutionConfig{
			InitialCapital: 100000,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct on top of the defaults, and applies environment variable
// overrides.
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that yaml decoding cannot express.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case "", "csv", "api", "alpaca":
	default:
		return fmt.Errorf("unknown data source %q", c.Data.Source)
	}
	if c.Execution.InitialCapital < 0 {
		return fmt.Errorf("initial_capital must not be negative")
	}
	for i, s := range c.Strategies {
		if s.Type == "" {
			return fmt.Errorf("strategy %d: missing type", i)
		}
	}
	return nil
}

// HasHeaderOrDefault resolves the optional has_header flag, defaulting to
// true.
func (d DataConfig) HasHeaderOrDefault() bool {
	if d.HasHeader == nil {
		return true
	}
	return *d.HasHeader
}

// PrintSummaryOrDefault resolves the optional print_summary flag, defaulting
// to true.
func (r ReporterConfig) PrintSummaryOrDefault() bool {
	if r.PrintSummary == nil {
		return true
	}
	return *r.PrintSummary
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Canonical Alpaca env vars take priority over the ALPACA_* aliases.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
