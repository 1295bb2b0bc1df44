package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/internal/supplier"
	"github.com/jafarshop/dropsync/pkg/errors"
)

const defaultImportPageSize = 20

// CatalogSyncEngine keeps supplier products priced and stocked
type CatalogSyncEngine struct {
	repos   *repository.Repositories
	clients ClientProvider
	metrics metrics.Recorder
	logger  *zap.Logger

	now         func() time.Time
	retryPolicy func() backoff.BackOff
}

// NewCatalogSyncEngine creates a new catalog sync engine
func NewCatalogSyncEngine(repos *repository.Repositories, clients ClientProvider, rec metrics.Recorder, logger *zap.Logger) *CatalogSyncEngine {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &CatalogSyncEngine{
		repos:       repos,
		clients:     clients,
		metrics:     rec,
		logger:      logger,
		now:         time.Now,
		retryPolicy: defaultRetryPolicy,
	}
}

// SyncOne refreshes every record of a supplier product. A failed product
// lookup only stores the error on the records; a failed stock lookup keeps
// the previous stock.
func (s *CatalogSyncEngine) SyncOne(ctx context.Context, supplierProductID string) (SyncResult, error) {
	var result SyncResult

	records, err := s.repos.SupplierProduct.ListBySupplierProductID(ctx, supplierProductID)
	if err != nil {
		return result, err
	}
	if len(records) == 0 {
		return result, &errors.ErrNotFound{Resource: "supplier product", ID: supplierProductID}
	}

	cfg, err := s.repos.SupplierConfig.GetByID(ctx, records[0].ConfigID)
	if err != nil {
		return result, err
	}
	client, err := s.clients.Client(ctx, cfg.ID)
	if err != nil {
		s.metrics.RecordProductSync("failed")
		s.recordSyncError(ctx, records, err)
		return result, err
	}

	detail, err := client.GetProduct(ctx, supplierProductID)
	if err != nil {
		s.metrics.RecordProductSync("failed")
		s.logger.Warn("Product sync failed",
			zap.String("supplier_product_id", supplierProductID),
			zap.Error(err),
		)
		s.recordSyncError(ctx, records, err)
		return result, err
	}

	variants := make(map[string]supplier.Variant, len(detail.Variants))
	for _, v := range detail.Variants {
		variants[string(v.VID)] = v
	}

	for _, record := range records {
		applyDetail(record, detail, variants)
		record.SellPrice = cfg.Markup.CalculateSalePrice(record.CostPrice)

		record.LastError = ""
		qty, err := s.stock(ctx, client, record)
		if err != nil {
			result.StockWarnings++
			record.LastError = "stock lookup failed: " + err.Error()
			s.logger.Warn("Stock lookup failed, keeping previous stock",
				zap.String("supplier_product_id", record.SupplierProductID),
				zap.String("supplier_variant_id", record.SupplierVariantID),
				zap.Int("stock_qty", record.StockQty),
				zap.Error(err),
			)
		} else {
			record.StockQty = qty
		}

		syncedAt := s.now().UTC()
		record.SyncedAt = &syncedAt
		if err := s.repos.SupplierProduct.Upsert(ctx, record); err != nil {
			s.metrics.RecordProductSync("failed")
			return result, err
		}
		result.Updated++

		s.writeThrough(ctx, record)
	}

	outcome := "ok"
	if result.StockWarnings > 0 {
		outcome = "partial"
	}
	s.metrics.RecordProductSync(outcome)
	s.logger.Info("Product synced",
		zap.String("supplier_product_id", supplierProductID),
		zap.Int("updated", result.Updated),
		zap.Int("stock_warnings", result.StockWarnings),
	)
	return result, nil
}

func (s *CatalogSyncEngine) recordSyncError(ctx context.Context, records []*domain.SupplierProduct, cause error) {
	for _, record := range records {
		if err := s.repos.SupplierProduct.RecordSyncError(ctx, record.ID, cause.Error()); err != nil {
			s.logger.Error("Failed to record product sync error",
				zap.String("supplier_product_record_id", record.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// applyDetail copies catalog data onto a record. Variant records take the
// variant's price when the supplier lists one.
func applyDetail(record *domain.SupplierProduct, detail *supplier.ProductDetail, variants map[string]supplier.Variant) {
	record.Name = detail.NameEn
	record.SKU = detail.SKU
	record.Description = detail.Description
	record.CategoryName = detail.CategoryName
	record.ImageURL = detail.Image
	record.Weight = detail.Weight.Decimal
	record.CostPrice = detail.SellPrice.Decimal
	record.Active = true

	if record.SupplierVariantID == "" {
		return
	}
	v, ok := variants[record.SupplierVariantID]
	if !ok {
		return
	}
	if v.NameEn != "" {
		record.Name = v.NameEn
	}
	if v.SKU != "" {
		record.SKU = v.SKU
	}
	if v.Image != "" {
		record.ImageURL = v.Image
	}
	if !v.Weight.IsZero() {
		record.Weight = v.Weight.Decimal
	}
	if v.SellPrice.IsPositive() {
		record.CostPrice = v.SellPrice.Decimal
	}
}

func (s *CatalogSyncEngine) stock(ctx context.Context, client SupplierAPI, record *domain.SupplierProduct) (int, error) {
	var inv *supplier.Inventory
	err := withRetry(ctx, s.retryPolicy, func() error {
		var qerr error
		inv, qerr = client.GetInventory(ctx, record.SupplierProductID, record.SupplierVariantID)
		return qerr
	})
	if err != nil {
		return 0, err
	}
	return inv.Quantity, nil
}

// writeThrough copies price and cost onto the mapped local product
func (s *CatalogSyncEngine) writeThrough(ctx context.Context, record *domain.SupplierProduct) {
	if record.LocalProductRef == nil {
		return
	}
	if err := s.repos.LocalProduct.UpdatePricing(ctx, *record.LocalProductRef, record.SellPrice, record.CostPrice); err != nil {
		s.logger.Error("Failed to update local product pricing",
			zap.String("local_product_id", record.LocalProductRef.String()),
			zap.Error(err),
		)
	}
}

// ApplyInventory sets the stock of a product or variant from an inventory
// notification. An empty variant id updates every record of the product.
func (s *CatalogSyncEngine) ApplyInventory(ctx context.Context, supplierProductID, supplierVariantID string, qty int) (int, error) {
	var records []*domain.SupplierProduct
	if supplierVariantID != "" {
		record, err := s.repos.SupplierProduct.GetByKey(ctx, supplierProductID, supplierVariantID)
		if err != nil && !errors.IsNotFound(err) {
			return 0, err
		}
		if record != nil {
			records = append(records, record)
		}
	} else {
		var err error
		records, err = s.repos.SupplierProduct.ListBySupplierProductID(ctx, supplierProductID)
		if err != nil {
			return 0, err
		}
	}

	if len(records) == 0 {
		key := supplierProductID
		if supplierVariantID != "" {
			key += "/" + supplierVariantID
		}
		return 0, &errors.MappingNotFoundError{Kind: "product", Key: key}
	}

	syncedAt := s.now().UTC()
	for _, record := range records {
		if err := s.repos.SupplierProduct.UpdateStock(ctx, record.ID, qty, syncedAt); err != nil {
			return 0, err
		}
	}

	s.logger.Info("Stock updated from notification",
		zap.String("supplier_product_id", supplierProductID),
		zap.String("supplier_variant_id", supplierVariantID),
		zap.Int("quantity", qty),
		zap.Int("records", len(records)),
	)
	return len(records), nil
}

// ImportProducts pulls one catalog page into supplier products
func (s *CatalogSyncEngine) ImportProducts(ctx context.Context, configID uuid.UUID, params ImportParams) (ImportResult, error) {
	var result ImportResult

	cfg, err := s.repos.SupplierConfig.GetByID(ctx, configID)
	if err != nil {
		return result, err
	}
	client, err := s.clients.Client(ctx, configID)
	if err != nil {
		return result, err
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultImportPageSize
	}

	page, err := client.ListProducts(ctx, supplier.ProductListParams{
		Page:       params.Page,
		PageSize:   params.PageSize,
		CategoryID: params.CategoryID,
	})
	if err != nil {
		return result, err
	}
	if len(page.List) == 0 {
		return result, &errors.ErrNotFound{Resource: "supplier products", ID: fmt.Sprintf("page %d", params.Page)}
	}

	for _, item := range page.List {
		if item.PID == "" {
			result.Skipped++
			continue
		}
		product := &domain.SupplierProduct{
			ConfigID:          configID,
			SupplierProductID: string(item.PID),
			Name:              item.NameEn,
			SKU:               item.SKU,
			Description:       item.Description,
			CategoryName:      item.CategoryName,
			ImageURL:          item.Image,
			Weight:            item.Weight.Decimal,
			CostPrice:         item.SellPrice.Decimal,
			SellPrice:         cfg.Markup.CalculateSalePrice(item.SellPrice.Decimal),
			Active:            true,
		}
		if existing, err := s.repos.SupplierProduct.GetByKey(ctx, product.SupplierProductID, ""); err == nil {
			product.StockQty = existing.StockQty
		}

		if err := s.repos.SupplierProduct.Upsert(ctx, product); err != nil {
			result.Skipped++
			s.logger.Warn("Failed to import product",
				zap.String("supplier_product_id", product.SupplierProductID),
				zap.Error(err),
			)
			continue
		}
		result.Imported++

		if !params.CreateLocalProducts || product.LocalProductRef != nil {
			continue
		}
		if _, err := s.createLocal(ctx, product); err != nil {
			s.logger.Warn("Failed to create local product",
				zap.String("supplier_product_id", product.SupplierProductID),
				zap.Error(err),
			)
			continue
		}
		result.LocalCreated++
	}

	s.logger.Info("Imported supplier products",
		zap.String("config_id", configID.String()),
		zap.Int("page", params.Page),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("local_created", result.LocalCreated),
	)
	return result, nil
}

// SyncAll syncs every product of a config
func (s *CatalogSyncEngine) SyncAll(ctx context.Context, configID uuid.UUID) (BatchResult, error) {
	var result BatchResult

	records, err := s.repos.SupplierProduct.ListByConfig(ctx, configID)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool, len(records))
	for _, record := range records {
		if seen[record.SupplierProductID] {
			continue
		}
		seen[record.SupplierProductID] = true

		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		if _, err := s.SyncOne(ctx, record.SupplierProductID); err != nil {
			result.Failed++
		}
	}
	return result, nil
}

// CreateLocalProduct creates the local product of a supplier product record
// and links it. A record that is already linked refreshes its local product
// instead. The returned flag reports whether a new product was created.
func (s *CatalogSyncEngine) CreateLocalProduct(ctx context.Context, recordID uuid.UUID) (*domain.LocalProduct, bool, error) {
	record, err := s.repos.SupplierProduct.GetByID(ctx, recordID)
	if err != nil {
		return nil, false, err
	}

	if record.LocalProductRef != nil {
		local, err := s.repos.LocalProduct.GetByID(ctx, *record.LocalProductRef)
		switch {
		case err == nil:
			applyRecord(local, record)
			if err := s.repos.LocalProduct.Update(ctx, local); err != nil {
				return nil, false, err
			}
			return local, false, nil
		case !errors.IsNotFound(err):
			return nil, false, err
		}
		// the linked product is gone; create a fresh one
	}

	local, err := s.createLocal(ctx, record)
	if err != nil {
		return nil, false, err
	}
	return local, true, nil
}

// LinkLocalProduct maps a supplier product record onto an existing local
// product and marks that product as supplier fulfilled
func (s *CatalogSyncEngine) LinkLocalProduct(ctx context.Context, recordID, localProductID uuid.UUID) (*domain.SupplierProduct, error) {
	record, err := s.repos.SupplierProduct.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	local, err := s.repos.LocalProduct.GetByID(ctx, localProductID)
	if err != nil {
		return nil, err
	}

	if err := s.repos.SupplierProduct.LinkLocalProduct(ctx, record.ID, local.ID); err != nil {
		return nil, err
	}
	record.LocalProductRef = &local.ID

	local.SupplierFulfilled = true
	local.ListPrice = record.SellPrice
	local.CostPrice = record.CostPrice
	if err := s.repos.LocalProduct.Update(ctx, local); err != nil {
		return nil, err
	}

	s.logger.Info("Linked local product",
		zap.String("supplier_product_id", record.SupplierProductID),
		zap.String("supplier_variant_id", record.SupplierVariantID),
		zap.String("local_product_id", local.ID.String()),
	)
	return record, nil
}

// CreateLocalProducts creates local products for every record of a config
// that has none
func (s *CatalogSyncEngine) CreateLocalProducts(ctx context.Context, configID uuid.UUID) (BatchResult, error) {
	var result BatchResult

	if _, err := s.repos.SupplierConfig.GetByID(ctx, configID); err != nil {
		return result, err
	}
	records, err := s.repos.SupplierProduct.ListByConfig(ctx, configID)
	if err != nil {
		return result, err
	}

	for _, record := range records {
		if record.LocalProductRef != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		if _, err := s.createLocal(ctx, record); err != nil {
			result.Failed++
			s.logger.Warn("Failed to create local product",
				zap.String("supplier_product_id", record.SupplierProductID),
				zap.String("supplier_variant_id", record.SupplierVariantID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

func (s *CatalogSyncEngine) createLocal(ctx context.Context, record *domain.SupplierProduct) (*domain.LocalProduct, error) {
	local := &domain.LocalProduct{}
	applyRecord(local, record)
	if err := s.repos.LocalProduct.Create(ctx, local); err != nil {
		return nil, err
	}
	if err := s.repos.SupplierProduct.LinkLocalProduct(ctx, record.ID, local.ID); err != nil {
		return nil, err
	}
	record.LocalProductRef = &local.ID

	s.logger.Info("Created local product",
		zap.String("supplier_product_id", record.SupplierProductID),
		zap.String("supplier_variant_id", record.SupplierVariantID),
		zap.String("local_product_id", local.ID.String()),
	)
	return local, nil
}

// applyRecord copies catalog data of a supplier record onto its local product
func applyRecord(local *domain.LocalProduct, record *domain.SupplierProduct) {
	local.Name = record.Name
	if local.Name == "" {
		local.Name = record.SupplierProductID
	}
	local.SKU = record.SKU
	local.ListPrice = record.SellPrice
	local.CostPrice = record.CostPrice
	local.SupplierFulfilled = true
}
