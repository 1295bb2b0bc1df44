package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/logger"
	"github.com/jafarshop/dropsync/internal/repository/postgres"
	"github.com/jafarshop/dropsync/internal/service"
	"github.com/jafarshop/dropsync/internal/supplier"
)

// One scheduler pass: refresh open orders, re-sync every active config's
// catalogue and retry webhooks that failed processing. Meant to be run from
// cron or a Kubernetes CronJob.
func main() {
	var (
		orderLimit   int
		webhookLimit int
		skipCatalog  bool
		timeout      time.Duration
	)
	flag.IntVar(&orderLimit, "orders", 100, "Maximum open orders to refresh")
	flag.IntVar(&webhookLimit, "webhooks", 100, "Maximum pending webhooks to process")
	flag.BoolVar(&skipCatalog, "skip-catalog", false, "Skip the catalogue sync")
	flag.DurationVar(&timeout, "timeout", 30*time.Minute, "Overall time limit for the pass")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logCfg := logger.ForEnvironment(cfg.Environment, cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, log)
	clients := service.NewRegistryProvider(supplier.NewRegistry(cfg.Supplier, repos.SupplierConfig, supplier.NewMemorySessionStore(), log, nil))
	orders := service.NewOrderSyncEngine(repos, clients, service.NewEventActivitySink(repos.OrderEvent), nil, log, cfg.Sync.SubmitClaimTTL)
	catalog := service.NewCatalogSyncEngine(repos, clients, nil, log)
	webhooks := service.NewWebhookIngestor(repos, orders, catalog, nil, log)

	failed := false

	result, err := orders.RefreshOpenOrders(ctx, orderLimit)
	if err != nil {
		log.Error("Order refresh failed", zap.Error(err))
		failed = true
	} else {
		log.Info("Orders refreshed", zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
	}

	if !skipCatalog {
		configs, err := repos.SupplierConfig.List(ctx)
		if err != nil {
			log.Error("Failed to list supplier configs", zap.Error(err))
			failed = true
		}
		for _, conf := range configs {
			if !conf.Active {
				continue
			}
			result, err := catalog.SyncAll(ctx, conf.ID)
			if err != nil {
				log.Error("Catalog sync failed", zap.String("config_id", conf.ID.String()), zap.Error(err))
				failed = true
				continue
			}
			log.Info("Catalog synced",
				zap.String("config", conf.Name),
				zap.Int("processed", result.Processed),
				zap.Int("failed", result.Failed),
			)
		}
	}

	result, err = webhooks.ProcessPending(ctx, webhookLimit)
	if err != nil {
		log.Error("Webhook reprocessing failed", zap.Error(err))
		failed = true
	} else {
		log.Info("Pending webhooks processed", zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
	}

	if failed {
		os.Exit(1)
	}
}
