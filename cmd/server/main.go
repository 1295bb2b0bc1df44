package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/api"
	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/logger"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/internal/repository/postgres"
	"github.com/jafarshop/dropsync/internal/service"
	"github.com/jafarshop/dropsync/internal/supplier"
)

func main() {
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

	ctx := context.Background()

	// Connect to database
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(cfg.Database.MigrateURL()); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	repos := postgres.NewRepositories(db, log)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(registry)

	// Supplier sessions are shared through Redis when several processes
	// talk to the same account
	var store supplier.SessionStore = supplier.NewMemorySessionStore()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		store = supplier.NewRedisSessionStore(rdb, "")
		log.Info("Using Redis session store", zap.String("addr", cfg.Redis.Addr()))
	}

	clients := service.NewRegistryProvider(supplier.NewRegistry(cfg.Supplier, repos.SupplierConfig, store, log, rec))
	orders := service.NewOrderSyncEngine(repos, clients, service.NewEventActivitySink(repos.OrderEvent), rec, log, cfg.Sync.SubmitClaimTTL)
	catalog := service.NewCatalogSyncEngine(repos, clients, rec, log)

	router := api.NewRouter(cfg, repos, api.Services{
		Orders:   orders,
		Catalog:  catalog,
		Webhooks: service.NewWebhookIngestor(repos, orders, catalog, rec, log),
		Configs:  service.NewConfigService(repos, clients, log),
	}, registry, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
