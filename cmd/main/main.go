package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-relay/src/archive"
	"market-relay/src/broadcast"
	"market-relay/src/config"
	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/poller"
	"market-relay/src/push"
	"market-relay/src/server"
	"market-relay/src/state"
	"market-relay/src/store"
	"market-relay/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Upstream store
	modelStore := store.NewRedisModelStore(cfg.Store, appLogger.Named("Store"))
	err = helpers.RetryWithBackoff(appLogger, "store connect", 5, time.Second, func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		return modelStore.Ping(pingCtx)
	})
	if err != nil {
		appLogger.Critical("Failed to reach upstream store at %s: %v", cfg.Store.Addr, err)
	}
	defer modelStore.Close()

	// 2. Cache, registry, alert history
	cache := state.NewModelStateCache()
	registry := broadcast.NewRegistry(cache, appLogger.Named("Registry"))
	registry.Start()
	defer registry.Stop()

	alertHistory := utils.NewRingBuffer[models.MAlertEvent](cfg.Alerts.HistorySize)

	// 3. Archive (optional)
	arch, err := archive.New(cfg.Archive, appLogger.Named("Archive"))
	if err != nil {
		appLogger.Critical("Failed to init archive: %v", err)
	}
	if err := arch.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate archive: %v", err)
	}
	defer arch.Close()

	// 4. Market scheduler for off-hours cadence
	scheduler := utils.NewMarketScheduler(cfg.Symbols, appLogger.Named("MarketScheduler"))

	// 5. Push listener (event-driven writer)
	listener := push.NewListener(modelStore, cache, registry, alertHistory, appLogger.Named("Push"))
	if err := listener.Start(ctx); err != nil {
		appLogger.Critical("Failed to start push listener: %v", err)
	}
	defer listener.Stop()

	// 6. Poller (pull-driven writer); Start blocks for the initial full
	// fetch, so the first connected client is never served an empty cache.
	p := poller.NewPoller(cfg, modelStore, cache, registry, arch, scheduler, appLogger.Named("Poller"))
	p.Start(ctx)
	defer p.Stop()

	// 7. Retention cleanup, once a day
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := arch.CleanupOldData(); err != nil {
					appLogger.Warning("Archive cleanup failed: %v", err)
				}
			}
		}
	}()

	// 8. Stream server
	srv := server.NewStreamServer(cfg, registry, cache, alertHistory, appLogger.Named("Server"))
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
			cancel()
		}
	}()

	appLogger.Info("Relay running: %d symbols, poll=%dms candles=%dms",
		len(cfg.Symbols), cfg.Poll.IntervalMs, cfg.Poll.CandleIntervalMs)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down...")
	case <-ctx.Done():
	}
}
