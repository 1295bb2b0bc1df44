package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/pkg/errors"
)

type localOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLocalOrderRepository creates a repository over the host order tables
func NewLocalOrderRepository(db *sql.DB, logger *zap.Logger) *localOrderRepository {
	return &localOrderRepository{
		db:     db,
		logger: logger,
	}
}

func (r *localOrderRepository) Create(ctx context.Context, order *domain.LocalOrder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	s := order.Shipping

	_, err = tx.ExecContext(ctx, `
		INSERT INTO local_orders (id, name, note, ship_contact_name, ship_phone, ship_email, ship_country,
			ship_state, ship_city, ship_zip, ship_address, ship_address2)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, order.ID, order.Name, order.Note, s.ContactName, s.Phone, s.Email, s.Country,
		s.State, s.City, s.ZipCode, s.Address, s.Address2)
	if err != nil {
		r.logger.Error("Failed to create local order", zap.Error(err))
		return err
	}

	for i, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO local_order_lines (local_order_id, position, product_ref, quantity)
			VALUES ($1, $2, $3, $4)
		`, order.ID, i, line.ProductRef, line.Quantity)
		if err != nil {
			r.logger.Error("Failed to create local order line", zap.Error(err))
			return err
		}
	}

	return tx.Commit()
}

func (r *localOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LocalOrder, error) {
	var order domain.LocalOrder
	s := &order.Shipping

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, note, ship_contact_name, ship_phone, ship_email, ship_country,
			ship_state, ship_city, ship_zip, ship_address, ship_address2
		FROM local_orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.Name, &order.Note, &s.ContactName, &s.Phone, &s.Email, &s.Country,
		&s.State, &s.City, &s.ZipCode, &s.Address, &s.Address2)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "local order", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get local order", zap.Error(err))
		return nil, err
	}

	// Each line resolves to the most recently updated active supplier
	// product mapped to its local product
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.product_ref, l.quantity, COALESCE(p.supplier_fulfilled, false),
			COALESCE(sp.supplier_product_id, ''), COALESCE(sp.supplier_variant_id, '')
		FROM local_order_lines l
		LEFT JOIN local_products p ON p.id = l.product_ref
		LEFT JOIN LATERAL (
			SELECT supplier_product_id, supplier_variant_id
			FROM supplier_products
			WHERE local_product_ref = l.product_ref AND active = true
			ORDER BY updated_at DESC
			LIMIT 1
		) sp ON true
		WHERE l.local_order_id = $1
		ORDER BY l.position
	`, id)
	if err != nil {
		r.logger.Error("Failed to get local order lines", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.LocalOrderLine
		if err := rows.Scan(&line.ProductRef, &line.Quantity, &line.SupplierFulfilled,
			&line.SupplierProductID, &line.SupplierVariantID); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	return &order, rows.Err()
}
