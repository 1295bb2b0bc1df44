package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository/postgres"
	"github.com/jafarshop/dropsync/internal/supplier"
)

const pageSize = 50

func main() {
	var (
		configIDStr string
		categoryID  string
		maxPages    int
	)
	flag.StringVar(&configIDStr, "config", "", "Supplier config ID (default: the default config)")
	flag.StringVar(&categoryID, "category", "", "Restrict the search to a category")
	flag.IntVar(&maxPages, "max-pages", 200, "Stop after this many pages")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: go run cmd/find-product/main.go [flags] <sku>")
		fmt.Println("Example: go run cmd/find-product/main.go \"CJJJJTCF01234\"")
		os.Exit(1)
	}
	targetSKU := strings.TrimSpace(flag.Arg(0))

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

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)

	var supplierConfig *domain.SupplierConfig
	if configIDStr != "" {
		configID, err := uuid.Parse(configIDStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid config ID %q\n", configIDStr)
			os.Exit(1)
		}
		supplierConfig, err = repos.SupplierConfig.GetByID(ctx, configID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load supplier config: %v\n", err)
			os.Exit(1)
		}
	} else {
		supplierConfig, err = repos.SupplierConfig.GetDefault(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load default supplier config: %v\n", err)
			os.Exit(1)
		}
	}

	registry := supplier.NewRegistry(cfg.Supplier, repos.SupplierConfig, supplier.NewMemorySessionStore(), logger, nil)
	client, err := registry.Client(ctx, supplierConfig.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create supplier client: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🔍 Searching for SKU: %s\n\n", targetSKU)

	checked := 0
	for page := 1; page <= maxPages; page++ {
		result, err := client.ListProducts(ctx, supplier.ProductListParams{
			Page:       page,
			PageSize:   pageSize,
			CategoryID: categoryID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query supplier: %v\n", err)
			os.Exit(1)
		}
		if len(result.List) == 0 {
			break
		}

		for _, product := range result.List {
			checked++
			if product.SKU == "" || !strings.EqualFold(product.SKU, targetSKU) && !strings.HasPrefix(strings.ToUpper(targetSKU), strings.ToUpper(product.SKU)) {
				continue
			}
			if printMatch(ctx, client, product, targetSKU) {
				return
			}
		}

		if result.Total > 0 && checked >= int(result.Total) {
			break
		}
		fmt.Printf("⏳ Searching... (checked %d products so far)\n", checked)
	}

	fmt.Printf("❌ SKU '%s' not found in the supplier catalog.\n", targetSKU)
	fmt.Printf("\nMake sure:\n")
	fmt.Printf("  1. The SKU is correct\n")
	fmt.Printf("  2. The product is listed for the configured account\n")
	os.Exit(1)
}

// printMatch prints the product and the variant whose SKU equals target.
// It reports false when the product SKU only shares a prefix and no
// variant matches.
func printMatch(ctx context.Context, client *supplier.Client, product supplier.ProductSummary, target string) bool {
	variantID := ""
	variantName := ""
	price := product.SellPrice.String()

	if !strings.EqualFold(product.SKU, target) {
		variants, err := client.GetProductVariants(ctx, string(product.PID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load variants of %s: %v\n", product.PID, err)
			return false
		}
		found := false
		for _, v := range variants {
			if strings.EqualFold(v.SKU, target) {
				variantID = string(v.VID)
				variantName = v.NameEn
				price = v.SellPrice.String()
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	fmt.Printf("✅ Found SKU!\n\n")
	fmt.Printf("Product: %s\n", product.NameEn)
	if variantName != "" {
		fmt.Printf("Variant: %s\n", variantName)
	}
	fmt.Printf("Price: %s\n", price)
	fmt.Printf("\nIDs:\n")
	fmt.Printf("  Product ID: %s\n", product.PID)
	if variantID != "" {
		fmt.Printf("  Variant ID: %s\n", variantID)
	}
	fmt.Printf("\nTo sync it, run:\n")
	fmt.Printf("curl -X POST localhost:8080/v1/admin/products/%s/sync\n", product.PID)
	return true
}
