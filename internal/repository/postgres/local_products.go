package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/pkg/errors"
)

type localProductRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLocalProductRepository creates a repository over the host catalog
func NewLocalProductRepository(db *sql.DB, logger *zap.Logger) *localProductRepository {
	return &localProductRepository{
		db:     db,
		logger: logger,
	}
}

func (r *localProductRepository) Create(ctx context.Context, p *domain.LocalProduct) error {
	query := `
		INSERT INTO local_products (id, name, sku, list_price, cost_price, supplier_fulfilled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.SKU, p.ListPrice, p.CostPrice, p.SupplierFulfilled, p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create local product", zap.Error(err))
		return err
	}
	return nil
}

func (r *localProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LocalProduct, error) {
	query := `
		SELECT id, name, sku, list_price, cost_price, supplier_fulfilled, updated_at
		FROM local_products
		WHERE id = $1
	`

	var p domain.LocalProduct
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.ListPrice,
		&p.CostPrice,
		&p.SupplierFulfilled,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "local product", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get local product", zap.Error(err))
		return nil, err
	}
	return &p, nil
}

func (r *localProductRepository) Update(ctx context.Context, p *domain.LocalProduct) error {
	query := `
		UPDATE local_products
		SET name = $2, sku = $3, list_price = $4, cost_price = $5, supplier_fulfilled = $6, updated_at = $7
		WHERE id = $1
	`

	p.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.SKU, p.ListPrice, p.CostPrice, p.SupplierFulfilled, p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to update local product", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "local product", ID: p.ID.String()}
	}
	return nil
}

func (r *localProductRepository) UpdatePricing(ctx context.Context, id uuid.UUID, listPrice, costPrice decimal.Decimal) error {
	query := `
		UPDATE local_products
		SET list_price = $2, cost_price = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, listPrice, costPrice, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to update local product pricing", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "local product", ID: id.String()}
	}
	return nil
}
