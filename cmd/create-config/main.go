package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository/postgres"
	"github.com/jafarshop/dropsync/internal/service"
	"github.com/jafarshop/dropsync/internal/supplier"
)

func main() {
	var (
		autoFulfil bool
		webhooks   bool
		markupType string
		markup     string
		interval   int
		test       bool
	)
	flag.BoolVar(&autoFulfil, "auto-fulfil", false, "Submit confirmed orders to the supplier automatically")
	flag.BoolVar(&webhooks, "webhooks", true, "Accept supplier webhooks for this account")
	flag.StringVar(&markupType, "markup-type", string(domain.MarkupTypePercentage), "Markup type (percentage, fixed)")
	flag.StringVar(&markup, "markup", "30", "Markup amount")
	flag.IntVar(&interval, "sync-hours", 24, "Catalog sync interval in hours")
	flag.BoolVar(&test, "test", true, "Test the connection after creating the config")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Println("Usage: go run cmd/create-config/main.go [flags] <name> <email>")
		fmt.Println("The API key is read from SUPPLIER_API_KEY.")
		fmt.Println("Example: SUPPLIER_API_KEY=... go run cmd/create-config/main.go -auto-fulfil \"Main account\" ops@example.com")
		os.Exit(1)
	}

	apiKey := os.Getenv("SUPPLIER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SUPPLIER_API_KEY is required")
		os.Exit(1)
	}

	amount, err := decimal.NewFromString(markup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid markup amount %q\n", markup)
		os.Exit(1)
	}
	rule := domain.MarkupRule{Type: domain.MarkupType(markupType), Amount: amount}
	if !rule.Type.IsValid() {
		fmt.Fprintf(os.Stderr, "Invalid markup type %q\n", markupType)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx := context.Background()

	// Connect to database
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)
	clients := service.NewRegistryProvider(supplier.NewRegistry(cfg.Supplier, repos.SupplierConfig, supplier.NewMemorySessionStore(), logger, nil))
	configs := service.NewConfigService(repos, clients, logger)

	supplierConfig := &domain.SupplierConfig{
		Name:              args[0],
		Active:            true,
		Credential:        domain.Credential{Email: args[1], Secret: apiKey},
		AutoFulfillOrders: autoFulfil,
		Markup:            rule,
		WebhookEnabled:    webhooks,
		SyncIntervalHours: interval,
	}
	if err := configs.CreateConfig(ctx, supplierConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create supplier config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Supplier config created\n\n")
	fmt.Printf("Config ID: %s\n", supplierConfig.ID.String())
	fmt.Printf("Name: %s\n", supplierConfig.Name)
	fmt.Printf("Auto-fulfil: %t\n", supplierConfig.AutoFulfillOrders)
	fmt.Printf("Markup: %s %s\n", supplierConfig.Markup.Amount.String(), supplierConfig.Markup.Type)
	if supplierConfig.WebhookEnabled {
		fmt.Printf("\nPoint the supplier's webhook at:\n")
		fmt.Printf("  POST /webhook/%s\n", supplierConfig.ID.String())
	}

	if !test {
		return
	}

	fmt.Printf("\n🔌 Testing connection...\n")
	if _, err := configs.TestConnection(ctx, supplierConfig.ID); err != nil {
		fmt.Printf("❌ Connection failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Connection successful\n")
}
