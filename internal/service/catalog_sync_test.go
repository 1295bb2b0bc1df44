package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/supplier"
	"github.com/jafarshop/dropsync/pkg/errors"
)

func price(s string) supplier.Price {
	return supplier.Price{Decimal: decimal.RequireFromString(s)}
}

func mugDetail() *supplier.ProductDetail {
	return &supplier.ProductDetail{
		ProductSummary: supplier.ProductSummary{
			PID:          "P1",
			NameEn:       "Ceramic Mug",
			SKU:          "CJ-MUG",
			Description:  "350ml",
			SellPrice:    price("10.00"),
			CategoryName: "Kitchen",
			Image:        "https://img.example.com/mug.jpg",
			Weight:       price("300"),
		},
		Variants: []supplier.Variant{
			{VID: "V1", PID: "P1", NameEn: "Ceramic Mug Red", SKU: "CJ-MUG-RED", SellPrice: price("12.00")},
		},
	}
}

// seedCatalog stores the base record of P1 mapped to a local product plus
// variant V1
func (f *fixture) seedCatalog(t *testing.T) (*domain.LocalProduct, *domain.SupplierProduct, *domain.SupplierProduct) {
	t.Helper()
	ctx := context.Background()

	local := &domain.LocalProduct{Name: "Mug", SupplierFulfilled: true}
	require.NoError(t, f.repos.LocalProduct.Create(ctx, local))

	base := &domain.SupplierProduct{ConfigID: f.config.ID, SupplierProductID: "P1", LocalProductRef: &local.ID, Active: true, StockQty: 4}
	variant := &domain.SupplierProduct{ConfigID: f.config.ID, SupplierProductID: "P1", SupplierVariantID: "V1", Active: true, StockQty: 4}
	require.NoError(t, f.repos.SupplierProduct.Upsert(ctx, base))
	require.NoError(t, f.repos.SupplierProduct.Upsert(ctx, variant))
	return local, base, variant
}

func TestCatalogSync_SyncOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	local, _, _ := f.seedCatalog(t)

	f.api.getProduct = func(pid string) (*supplier.ProductDetail, error) { return mugDetail(), nil }
	f.api.inventory = func(pid, vid string) (*supplier.Inventory, error) {
		if vid == "V1" {
			return &supplier.Inventory{Quantity: 7}, nil
		}
		return &supplier.Inventory{Quantity: 30}, nil
	}

	result, err := f.catalog.SyncOne(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Updated: 2}, result)

	base, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "")
	require.NoError(t, err)
	assert.Equal(t, "Ceramic Mug", base.Name)
	assert.True(t, decimal.RequireFromString("10.00").Equal(base.CostPrice))
	assert.True(t, decimal.RequireFromString("13.00").Equal(base.SellPrice))
	assert.Equal(t, 30, base.StockQty)
	require.NotNil(t, base.SyncedAt)

	variant, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "V1")
	require.NoError(t, err)
	assert.Equal(t, "Ceramic Mug Red", variant.Name)
	assert.Equal(t, "CJ-MUG-RED", variant.SKU)
	assert.True(t, decimal.RequireFromString("15.60").Equal(variant.SellPrice))
	assert.Equal(t, 7, variant.StockQty)

	stored, err := f.repos.LocalProduct.GetByID(ctx, local.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("13.00").Equal(stored.ListPrice))
	assert.True(t, decimal.RequireFromString("10.00").Equal(stored.CostPrice))
}

func TestCatalogSync_FixedMarkup(t *testing.T) {
	f := newFixtureWith(t, func(c *domain.SupplierConfig) {
		c.Markup = domain.MarkupRule{Type: domain.MarkupTypeFixed, Amount: decimal.NewFromInt(5)}
	})
	ctx := context.Background()
	f.seedCatalog(t)

	f.api.getProduct = func(string) (*supplier.ProductDetail, error) { return mugDetail(), nil }
	f.api.inventory = func(string, string) (*supplier.Inventory, error) { return &supplier.Inventory{Quantity: 1}, nil }

	_, err := f.catalog.SyncOne(ctx, "P1")
	require.NoError(t, err)

	base, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("15.00").Equal(base.SellPrice))
}

func TestCatalogSync_InventoryFailureKeepsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCatalog(t)

	f.api.getProduct = func(string) (*supplier.ProductDetail, error) { return mugDetail(), nil }
	f.api.inventory = func(string, string) (*supplier.Inventory, error) {
		return nil, &errors.APIError{Code: 1005, Message: "inventory unavailable", Transient: true}
	}

	result, err := f.catalog.SyncOne(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Updated: 2, StockWarnings: 2}, result)
	assert.Equal(t, 6, f.api.Calls("GetInventory"), "transient lookups are retried")

	base, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "")
	require.NoError(t, err)
	assert.Equal(t, 4, base.StockQty)
	assert.True(t, decimal.RequireFromString("13.00").Equal(base.SellPrice), "price still updates")
	assert.Contains(t, base.LastError, "stock lookup failed")
}

func TestCatalogSync_ProductLookupFailureRecordsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCatalog(t)

	f.api.getProduct = func(string) (*supplier.ProductDetail, error) {
		return nil, &errors.NetworkError{Op: "product.query", Err: context.DeadlineExceeded}
	}

	_, err := f.catalog.SyncOne(ctx, "P1")
	var netErr *errors.NetworkError
	require.ErrorAs(t, err, &netErr)

	base, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "")
	require.NoError(t, err)
	assert.Empty(t, base.Name)
	assert.Nil(t, base.SyncedAt)
	assert.Contains(t, base.LastError, "product.query")
	assert.Zero(t, f.api.Calls("GetInventory"))

	variant, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "V1")
	require.NoError(t, err)
	assert.Equal(t, base.LastError, variant.LastError)
}

func TestCatalogSync_ClientFailureRecordsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCatalog(t)

	f.catalog.clients = fakeProvider{err: &errors.AuthError{Reason: "access token rejected"}}

	_, err := f.catalog.SyncOne(ctx, "P1")
	require.Error(t, err)

	base, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "")
	require.NoError(t, err)
	assert.Contains(t, base.LastError, "access token rejected")
}

func TestCatalogSync_SuccessClearsLastError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, base, _ := f.seedCatalog(t)
	require.NoError(t, f.repos.SupplierProduct.RecordSyncError(ctx, base.ID, "product removed"))

	f.api.getProduct = func(string) (*supplier.ProductDetail, error) { return mugDetail(), nil }
	f.api.inventory = func(string, string) (*supplier.Inventory, error) { return &supplier.Inventory{Quantity: 5}, nil }

	_, err := f.catalog.SyncOne(ctx, "P1")
	require.NoError(t, err)

	stored, err := f.repos.SupplierProduct.GetByID(ctx, base.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.LastError)
	assert.Equal(t, 5, stored.StockQty)
}

func TestCatalogSync_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.SyncOne(context.Background(), "NOPE")
	assert.True(t, errors.IsNotFound(err))
}

func TestCatalogSync_ApplyInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCatalog(t)

	n, err := f.catalog.ApplyInventory(ctx, "P1", "", 9)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "no variant id updates every record of the product")

	n, err = f.catalog.ApplyInventory(ctx, "P1", "V1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	variant, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "V1")
	require.NoError(t, err)
	assert.Equal(t, 3, variant.StockQty)

	_, err = f.catalog.ApplyInventory(ctx, "P1", "V404", 3)
	assert.True(t, errors.IsMappingNotFound(err))
}

func TestCatalogSync_ImportProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var asked supplier.ProductListParams
	f.api.listProducts = func(params supplier.ProductListParams) (*supplier.ProductPage, error) {
		asked = params
		return &supplier.ProductPage{List: []supplier.ProductSummary{
			{PID: "P10", NameEn: "Lamp", SKU: "CJ-LAMP", SellPrice: price("20.00")},
			{PID: "", NameEn: "Broken"},
			{PID: "P11", NameEn: "Rug", SKU: "CJ-RUG", SellPrice: price("8.50")},
		}}, nil
	}

	result, err := f.catalog.ImportProducts(ctx, f.config.ID, ImportParams{CategoryID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 2, Skipped: 1}, result)
	assert.Equal(t, supplier.ProductListParams{Page: 1, PageSize: defaultImportPageSize, CategoryID: "C1"}, asked)

	lamp, err := f.repos.SupplierProduct.GetByKey(ctx, "P10", "")
	require.NoError(t, err)
	assert.Equal(t, f.config.ID, lamp.ConfigID)
	assert.True(t, decimal.RequireFromString("26.00").Equal(lamp.SellPrice))

	t.Run("empty page", func(t *testing.T) {
		f.api.listProducts = func(supplier.ProductListParams) (*supplier.ProductPage, error) {
			return &supplier.ProductPage{}, nil
		}
		_, err := f.catalog.ImportProducts(ctx, f.config.ID, ImportParams{Page: 9})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("unknown config", func(t *testing.T) {
		_, err := f.catalog.ImportProducts(ctx, uuid.New(), ImportParams{})
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestCatalogSync_SyncAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCatalog(t)
	require.NoError(t, f.repos.SupplierProduct.Upsert(ctx, &domain.SupplierProduct{
		ConfigID: f.config.ID, SupplierProductID: "P2", Active: true,
	}))

	f.api.getProduct = func(pid string) (*supplier.ProductDetail, error) {
		if pid == "P2" {
			return nil, &errors.APIError{Code: 1001, Message: "product removed"}
		}
		return mugDetail(), nil
	}
	f.api.inventory = func(string, string) (*supplier.Inventory, error) { return &supplier.Inventory{Quantity: 2}, nil }

	result, err := f.catalog.SyncAll(ctx, f.config.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 2, Failed: 1}, result)
	assert.Equal(t, 2, f.api.Calls("GetProduct"))
}

func (f *fixture) seedUnlinked(t *testing.T, pid, name string, cost string) *domain.SupplierProduct {
	t.Helper()
	record := &domain.SupplierProduct{
		ConfigID:          f.config.ID,
		SupplierProductID: pid,
		Name:              name,
		SKU:               "CJ-" + pid,
		CostPrice:         decimal.RequireFromString(cost),
		SellPrice:         f.config.Markup.CalculateSalePrice(decimal.RequireFromString(cost)),
		Active:            true,
	}
	require.NoError(t, f.repos.SupplierProduct.Upsert(context.Background(), record))
	return record
}

func TestCatalogSync_CreateLocalProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.seedUnlinked(t, "P5", "Desk Lamp", "20.00")

	local, created, err := f.catalog.CreateLocalProduct(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Desk Lamp", local.Name)
	assert.Equal(t, "CJ-P5", local.SKU)
	assert.True(t, decimal.RequireFromString("26.00").Equal(local.ListPrice))
	assert.True(t, decimal.RequireFromString("20.00").Equal(local.CostPrice))
	assert.True(t, local.SupplierFulfilled)

	stored, err := f.repos.SupplierProduct.GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LocalProductRef)
	assert.Equal(t, local.ID, *stored.LocalProductRef)

	order := &domain.LocalOrder{Name: "SO-LAMP", Lines: []domain.LocalOrderLine{{ProductRef: local.ID, Quantity: 1}}}
	require.NoError(t, f.repos.LocalOrder.Create(ctx, order))
	resolved, err := f.repos.LocalOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Lines[0].IsEligible(), "linked product makes the line eligible")
	assert.Equal(t, "P5", resolved.Lines[0].SupplierProductID)

	t.Run("linked record refreshes its product", func(t *testing.T) {
		f.seedUnlinked(t, "P5", "Desk Lamp XL", "30.00")

		again, created, err := f.catalog.CreateLocalProduct(ctx, record.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, local.ID, again.ID)
		assert.Equal(t, "Desk Lamp XL", again.Name)
		assert.True(t, decimal.RequireFromString("39.00").Equal(again.ListPrice))
	})

	t.Run("unknown record", func(t *testing.T) {
		_, _, err := f.catalog.CreateLocalProduct(ctx, uuid.New())
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestCatalogSync_LinkLocalProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local := &domain.LocalProduct{Name: "Mug", SKU: "MUG-1"}
	require.NoError(t, f.repos.LocalProduct.Create(ctx, local))
	record := f.seedUnlinked(t, "P1", "Ceramic Mug", "10.00")

	linked, err := f.catalog.LinkLocalProduct(ctx, record.ID, local.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.LocalProductRef)
	assert.Equal(t, local.ID, *linked.LocalProductRef)

	stored, err := f.repos.LocalProduct.GetByID(ctx, local.ID)
	require.NoError(t, err)
	assert.True(t, stored.SupplierFulfilled)
	assert.Equal(t, "Mug", stored.Name, "linking keeps the local name")
	assert.True(t, decimal.RequireFromString("13.00").Equal(stored.ListPrice))

	// later syncs write prices through to the linked product
	detail := mugDetail()
	detail.SellPrice = price("20.00")
	f.api.getProduct = func(string) (*supplier.ProductDetail, error) { return detail, nil }
	f.api.inventory = func(string, string) (*supplier.Inventory, error) { return &supplier.Inventory{Quantity: 1}, nil }
	_, err = f.catalog.SyncOne(ctx, "P1")
	require.NoError(t, err)

	stored, err = f.repos.LocalProduct.GetByID(ctx, local.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("26.00").Equal(stored.ListPrice))

	t.Run("unknown local product", func(t *testing.T) {
		_, err := f.catalog.LinkLocalProduct(ctx, record.ID, uuid.New())
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestCatalogSync_CreateLocalProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	linked, _, _ := f.seedCatalog(t)
	f.seedUnlinked(t, "P2", "Teapot", "15.00")

	result, err := f.catalog.CreateLocalProducts(ctx, f.config.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 2}, result, "the linked base record is skipped")

	for _, key := range [][2]string{{"P1", ""}, {"P1", "V1"}, {"P2", ""}} {
		record, err := f.repos.SupplierProduct.GetByKey(ctx, key[0], key[1])
		require.NoError(t, err)
		require.NotNil(t, record.LocalProductRef, key)
	}
	base, err := f.repos.SupplierProduct.GetByKey(ctx, "P1", "")
	require.NoError(t, err)
	assert.Equal(t, linked.ID, *base.LocalProductRef)

	result, err = f.catalog.CreateLocalProducts(ctx, f.config.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	_, err = f.catalog.CreateLocalProducts(ctx, uuid.New())
	assert.True(t, errors.IsNotFound(err))
}

func TestCatalogSync_ImportCreatesLocalProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.listProducts = func(supplier.ProductListParams) (*supplier.ProductPage, error) {
		return &supplier.ProductPage{List: []supplier.ProductSummary{
			{PID: "P10", NameEn: "Lamp", SKU: "CJ-LAMP", SellPrice: price("20.00")},
			{PID: "P11", NameEn: "Rug", SKU: "CJ-RUG", SellPrice: price("8.50")},
		}}, nil
	}

	result, err := f.catalog.ImportProducts(ctx, f.config.ID, ImportParams{CreateLocalProducts: true})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 2, LocalCreated: 2}, result)

	lamp, err := f.repos.SupplierProduct.GetByKey(ctx, "P10", "")
	require.NoError(t, err)
	require.NotNil(t, lamp.LocalProductRef)
	local, err := f.repos.LocalProduct.GetByID(ctx, *lamp.LocalProductRef)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", local.Name)
	assert.True(t, decimal.RequireFromString("26.00").Equal(local.ListPrice))

	result, err = f.catalog.ImportProducts(ctx, f.config.ID, ImportParams{CreateLocalProducts: true})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 2}, result, "linked records keep their product")
}
