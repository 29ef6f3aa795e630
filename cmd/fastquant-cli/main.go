package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fastquant/internal/config"
	"fastquant/internal/engine"
	"fastquant/internal/feed"
	"fastquant/internal/report"
	"fastquant/internal/store"
	"fastquant/internal/strategy/builtins"
	"fastquant/internal/util"
)

const version = "0.2.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: fastquant-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  validate   Validate the config and exit\n")
	fmt.Fprintf(os.Stderr, "  run        Run the configured backtests\n")
	fmt.Fprintf(os.Stderr, "\nOptions for validate/run:\n")
	fmt.Fprintf(os.Stderr, "  -config <path>   Config file (default fastquant.yaml, or FASTQUANT_CONFIG)\n")
	fmt.Fprintf(os.Stderr, "  -print-config    Print the resolved config after loading\n")
	fmt.Fprintf(os.Stderr, "  -no-summary      Skip printing summaries to stdout\n\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("fastquant-cli %s\n", version)

	case "validate", "run":
		if err := runCommand(os.Args[1], os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func runCommand(command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file path")
	printConfig := fs.Bool("print-config", false, "print the resolved config")
	noSummary := fs.Bool("no-summary", false, "skip printing summaries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		*cfgPath = fs.Arg(fs.NArg() - 1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	if *printConfig {
		describeConfig(cfg, *cfgPath)
	}
	if command == "validate" {
		fmt.Println("Config validated successfully.")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runBacktests(ctx, cfg, !*noSummary)
}

func defaultConfigPath() string {
	if p := os.Getenv("FASTQUANT_CONFIG"); p != "" {
		return p
	}
	return "fastquant.yaml"
}

func runBacktests(ctx context.Context, cfg *config.Config, showSummary bool) error {
	newSource, err := sourceFactory(cfg)
	if err != nil {
		return err
	}
	factories, err := builtins.FactoriesFromConfig(cfg.Strategies)
	if err != nil {
		return err
	}

	bt := engine.NewBacktester(engine.ExecConfig{
		InitialCapital:     cfg.Execution.InitialCapital,
		DefaultSlippageBps: cfg.Execution.DefaultSlippageBps,
		CommissionPerUnit:  cfg.Execution.CommissionPerUnit,
		CommissionBps:      cfg.Execution.CommissionBps,
	}, nil)

	results, runErr := bt.RunAll(ctx, newSource, factories)

	var runStore store.RunStore
	if cfg.Storage.SQLitePath != "" {
		ss, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening run store: %w", err)
		}
		defer ss.Close()
		runStore = ss
	}

	printSummaries := showSummary && cfg.Reporter.PrintSummaryOrDefault()
	multi := len(results) > 1
	wroteArtifacts := false

	for i, res := range results {
		if res == nil {
			continue
		}
		label := res.StrategyName
		if label == "" {
			label = fmt.Sprintf("strategy-%d", i)
		}

		if printSummaries {
			fmt.Printf("\n=== FastQuant Report - %s ===\n", label)
			report.PrintSummary(os.Stdout, res)
			fmt.Printf("candles processed: %d\n", res.CandlesProcessed)
		}

		if path := reportPath(cfg.Reporter.JSONPath, label, multi); path != "" {
			if err := report.WriteJSONFile(path, res); err != nil {
				return fmt.Errorf("writing JSON report: %w", err)
			}
			fmt.Printf("[%s] JSON report written to %s\n", label, path)
			wroteArtifacts = true
		}
		if path := reportPath(cfg.Reporter.SummaryCSVPath, label, multi); path != "" {
			if err := report.WriteSummaryCSVFile(path, res); err != nil {
				return fmt.Errorf("writing summary CSV: %w", err)
			}
			fmt.Printf("[%s] Summary CSV written to %s\n", label, path)
			wroteArtifacts = true
		}
		if path := reportPath(cfg.Reporter.TradesCSVPath, label, multi); path != "" {
			if err := report.WriteTradesCSVFile(path, res); err != nil {
				return fmt.Errorf("writing trades CSV: %w", err)
			}
			fmt.Printf("[%s] Trades CSV written to %s\n", label, path)
			wroteArtifacts = true
		}

		if runStore != nil {
			id, err := runStore.SaveRun(ctx, report.Summarize(res), res.Trades)
			if err != nil {
				return fmt.Errorf("persisting run %s: %w", label, err)
			}
			fmt.Printf("[%s] Run persisted with id %d\n", label, id)
		}
	}

	if printSummaries && !wroteArtifacts {
		fmt.Println("\nNo report files configured; summary printed to stdout only.")
	}
	return runErr
}

// sourceFactory builds a per-run bar source opener from the data config.
func sourceFactory(cfg *config.Config) (feed.SourceFactory, error) {
	switch cfg.Data.Source {
	case "csv", "":
		if cfg.Data.Path == "" {
			return nil, fmt.Errorf("data source csv requires a path")
		}
		csvCfg := feed.DefaultCSVConfig()
		if cfg.Data.Delimiter != "" {
			csvCfg.Delimiter = cfg.Data.Delimiter
		}
		csvCfg.HasHeader = cfg.Data.HasHeaderOrDefault()
		csvCfg.Strict = cfg.Data.Strict
		path := cfg.Data.Path
		return func() feed.BarSource {
			return feed.NewCSVSource(path, csvCfg)
		}, nil

	case "api":
		apiCfg := feed.APIConfig{
			Endpoint:  cfg.Data.Endpoint,
			Headers:   cfg.Data.Headers,
			Query:     cfg.Data.Query,
			DataField: cfg.Data.DataField,
			Fields: feed.FieldMap{
				Timestamp: cfg.Data.Fields.Timestamp,
				Open:      cfg.Data.Fields.Open,
				High:      cfg.Data.Fields.High,
				Low:       cfg.Data.Fields.Low,
				Close:     cfg.Data.Fields.Close,
				Volume:    cfg.Data.Fields.Volume,
				Symbol:    cfg.Data.Fields.Symbol,
			},
			FallbackSymbol: cfg.Data.Symbol,
		}
		return func() feed.BarSource {
			return feed.NewAPISource(apiCfg, nil)
		}, nil

	case "alpaca":
		if cfg.Data.Symbol == "" {
			return nil, fmt.Errorf("data source alpaca requires a symbol")
		}
		start, end, err := alpacaRange(cfg.Data.Start, cfg.Data.End)
		if err != nil {
			return nil, err
		}
		alpaca := cfg.Alpaca
		symbol := cfg.Data.Symbol
		return func() feed.BarSource {
			return feed.NewAlpacaSource(alpaca.APIKey, alpaca.APISecret, alpaca.DataURL,
				symbol, start, end)
		}, nil

	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

func alpacaRange(startStr, endStr string) (time.Time, time.Time, error) {
	start := time.Now().UTC().AddDate(-1, 0, 0)
	end := time.Now().UTC()
	if startStr != "" {
		parsed, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", startStr)
		}
		start = parsed
	}
	if endStr != "" {
		parsed, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", endStr)
		}
		end = parsed
	}
	return start, end, nil
}

// reportPath appends the strategy label before the extension when multiple
// strategies share one configured path.
func reportPath(base, label string, multi bool) string {
	if base == "" {
		return ""
	}
	if !multi {
		return base
	}
	ext := filepath.Ext(base)
	safe := strings.ReplaceAll(label, string(filepath.Separator), "-")
	return strings.TrimSuffix(base, ext) + "." + safe + ext
}

func describeConfig(cfg *config.Config, path string) {
	fmt.Println("\nResolved config:")
	fmt.Printf("  Source file   : %s\n", path)
	fmt.Printf("  Data source   : %s\n", cfg.Data.Source)
	switch cfg.Data.Source {
	case "csv", "":
		fmt.Printf("  Data path     : %s\n", cfg.Data.Path)
	case "api":
		fmt.Printf("  Endpoint      : %s\n", cfg.Data.Endpoint)
	case "alpaca":
		fmt.Printf("  Symbol        : %s (%s .. %s)\n", cfg.Data.Symbol, cfg.Data.Start, cfg.Data.End)
	}
	fmt.Printf("  Initial cap   : %.2f\n", cfg.Execution.InitialCapital)
	fmt.Printf("  Strategies    : %d\n", len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		switch s.Type {
		case "moving_average":
			fmt.Printf("    - %s [%s] short=%d, long=%d, qty=%g\n",
				s.Name, s.Type, s.ShortWindow, s.LongWindow, s.OrderQty)
		case "breakout":
			fmt.Printf("    - %s [%s] lookback=%d, buffer=%g, qty=%g, allow_short=%t\n",
				s.Name, s.Type, s.Lookback, s.Buffer, s.OrderQty, s.AllowShort)
		default:
			fmt.Printf("    - %s [%s]\n", s.Name, s.Type)
		}
	}
	fmt.Printf("  Execution     : slippage=%g bps, per-unit fee=%g, bps fee=%g\n",
		cfg.Execution.DefaultSlippageBps, cfg.Execution.CommissionPerUnit, cfg.Execution.CommissionBps)
	fmt.Printf("  Reporter paths: JSON=%s, summary=%s, trades=%s\n",
		orDash(cfg.Reporter.JSONPath), orDash(cfg.Reporter.SummaryCSVPath), orDash(cfg.Reporter.TradesCSVPath))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
