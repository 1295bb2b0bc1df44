package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/pkg/errors"
)

const productColumns = `id, config_id, supplier_product_id, supplier_variant_id, name, sku, description,
		category_name, image_url, weight, cost_price, sell_price, stock_qty, local_product_ref, active,
		last_error, synced_at, created_at, updated_at`

type supplierProductRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSupplierProductRepository creates a new supplier product repository
func NewSupplierProductRepository(db *sql.DB, logger *zap.Logger) *supplierProductRepository {
	return &supplierProductRepository{
		db:     db,
		logger: logger,
	}
}

func scanProduct(row rowScanner) (*domain.SupplierProduct, error) {
	var p domain.SupplierProduct
	var localRef uuid.NullUUID
	var syncedAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.ConfigID,
		&p.SupplierProductID,
		&p.SupplierVariantID,
		&p.Name,
		&p.SKU,
		&p.Description,
		&p.CategoryName,
		&p.ImageURL,
		&p.Weight,
		&p.CostPrice,
		&p.SellPrice,
		&p.StockQty,
		&localRef,
		&p.Active,
		&p.LastError,
		&syncedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if localRef.Valid {
		p.LocalProductRef = &localRef.UUID
	}
	p.SyncedAt = timePtr(syncedAt)
	return &p, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (r *supplierProductRepository) Upsert(ctx context.Context, p *domain.SupplierProduct) error {
	// local_product_ref is only overwritten when a new mapping is supplied
	query := `
		INSERT INTO supplier_products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		ON CONFLICT (supplier_product_id, supplier_variant_id) DO UPDATE SET
			config_id = EXCLUDED.config_id,
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			description = EXCLUDED.description,
			category_name = EXCLUDED.category_name,
			image_url = EXCLUDED.image_url,
			weight = EXCLUDED.weight,
			cost_price = EXCLUDED.cost_price,
			sell_price = EXCLUDED.sell_price,
			stock_qty = EXCLUDED.stock_qty,
			local_product_ref = COALESCE(EXCLUDED.local_product_ref, supplier_products.local_product_ref),
			active = EXCLUDED.active,
			last_error = EXCLUDED.last_error,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, local_product_ref, created_at
	`

	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UpdatedAt = now

	var localRef uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.ConfigID,
		p.SupplierProductID,
		p.SupplierVariantID,
		p.Name,
		p.SKU,
		p.Description,
		p.CategoryName,
		p.ImageURL,
		p.Weight,
		p.CostPrice,
		p.SellPrice,
		p.StockQty,
		nullUUID(p.LocalProductRef),
		p.Active,
		p.LastError,
		nullTime(p.SyncedAt),
		now,
	).Scan(&p.ID, &localRef, &p.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert supplier product",
			zap.String("supplier_product_id", p.SupplierProductID),
			zap.String("supplier_variant_id", p.SupplierVariantID),
			zap.Error(err),
		)
		return err
	}
	if localRef.Valid {
		p.LocalProductRef = &localRef.UUID
	}
	return nil
}

func (r *supplierProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupplierProduct, error) {
	query := `SELECT ` + productColumns + ` FROM supplier_products WHERE id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get supplier product by ID", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *supplierProductRepository) GetByKey(ctx context.Context, supplierProductID, supplierVariantID string) (*domain.SupplierProduct, error) {
	query := `
		SELECT ` + productColumns + `
		FROM supplier_products
		WHERE supplier_product_id = $1 AND supplier_variant_id = $2
	`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, supplierProductID, supplierVariantID))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "supplier product", ID: supplierProductID + "/" + supplierVariantID}
	}
	if err != nil {
		r.logger.Error("Failed to get supplier product by key", zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *supplierProductRepository) list(ctx context.Context, where string, arg interface{}) ([]*domain.SupplierProduct, error) {
	query := `SELECT ` + productColumns + ` FROM supplier_products WHERE ` + where + ` ORDER BY supplier_product_id, supplier_variant_id`

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list supplier products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var products []*domain.SupplierProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *supplierProductRepository) ListBySupplierProductID(ctx context.Context, supplierProductID string) ([]*domain.SupplierProduct, error) {
	return r.list(ctx, "supplier_product_id = $1", supplierProductID)
}

func (r *supplierProductRepository) ListByConfig(ctx context.Context, configID uuid.UUID) ([]*domain.SupplierProduct, error) {
	return r.list(ctx, "config_id = $1 AND active = true", configID)
}

func (r *supplierProductRepository) UpdateStock(ctx context.Context, id uuid.UUID, qty int, syncedAt time.Time) error {
	query := `
		UPDATE supplier_products
		SET stock_qty = $2, synced_at = $3, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, qty, syncedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to update supplier product stock", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	return nil
}

func (r *supplierProductRepository) LinkLocalProduct(ctx context.Context, id, localProductID uuid.UUID) error {
	query := `
		UPDATE supplier_products
		SET local_product_ref = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, localProductID, time.Now().UTC())
	if err != nil {
		if _, ok := foreignKeyConstraint(err); ok {
			return &errors.ErrNotFound{Resource: "local product", ID: localProductID.String()}
		}
		r.logger.Error("Failed to link supplier product", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	return nil
}

func (r *supplierProductRepository) RecordSyncError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE supplier_products
		SET last_error = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, message, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to record supplier product sync error", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	return nil
}
