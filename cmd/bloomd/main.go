package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rishabg/bloomd/internal/adminapi"
	"github.com/rishabg/bloomd/internal/config"
	"github.com/rishabg/bloomd/internal/filtmgr"
	"github.com/rishabg/bloomd/internal/flusher"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := "bloomd.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := initLogger(cfg)

	if err := os.MkdirAll(cfg.Data.DataDir, 0o755); err != nil {
		log.Error("failed to create data directory", "data_dir", cfg.Data.DataDir, "error", err)
		os.Exit(1)
	}

	mgr, err := filtmgr.New(cfg, log)
	if err != nil {
		log.Error("failed to start filter manager", "error", err)
		os.Exit(1)
	}
	log.Info("filter manager started", "num_filters", mgr.NumFilters())

	bg := flusher.New(mgr, time.Duration(cfg.Filter.FlushIntervalSecs)*time.Second, log)
	bg.Start(ctx)

	admin := adminapi.New(mgr, cfg.Server.Addr, log)
	admin.Start()

	log.Info("bloomd is running", "admin_addr", cfg.Server.Addr)
	<-ctx.Done()
	log.Info("shutting down")

	bg.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := admin.Stop(shutdownCtx); err != nil {
		log.Warn("error stopping admin server", "error", err)
	}

	if err := mgr.Close(shutdownCtx); err != nil {
		log.Warn("error closing filter manager", "error", err)
	}

	log.Info("bloomd stopped")
}
