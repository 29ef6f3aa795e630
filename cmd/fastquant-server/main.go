package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fastquant/internal/config"
	"fastquant/internal/httpapi"
	"fastquant/internal/store"
	"fastquant/internal/util"
)

func main() {
	cfgPath := "fastquant.yaml"
	if p := os.Getenv("FASTQUANT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	var bars store.BarStore
	if cfg.Storage.DataDir != "" {
		bars = store.NewParquetStore(cfg.Storage.DataDir)
	}

	var runs store.RunStore
	if cfg.Storage.SQLitePath != "" {
		ss, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer ss.Close()
		runs = ss
	}

	srv := httpapi.NewServer(cfg, bars, runs)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("starting fastquant server on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
