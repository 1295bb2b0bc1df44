package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/pkg/errors"
)

const orderColumns = `id, local_order_id, config_id, supplier_order_id, supplier_order_number, state,
		tracking_number, shipping_method, logistics_snapshot, last_logistics_at, last_error,
		request_data, response_data, submit_attempted_at, version, created_at, updated_at`

type supplierOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSupplierOrderRepository creates a new supplier order repository
func NewSupplierOrderRepository(db *sql.DB, logger *zap.Logger) *supplierOrderRepository {
	return &supplierOrderRepository{
		db:     db,
		logger: logger,
	}
}

func scanOrder(row rowScanner) (*domain.SupplierOrder, error) {
	var order domain.SupplierOrder
	var supplierOrderID sql.NullString
	var state string
	var snapshot, requestData, responseData []byte
	var lastLogisticsAt, submitAttemptedAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.LocalOrderID,
		&order.ConfigID,
		&supplierOrderID,
		&order.SupplierOrderNumber,
		&state,
		&order.TrackingNumber,
		&order.ShippingMethod,
		&snapshot,
		&lastLogisticsAt,
		&order.LastError,
		&requestData,
		&responseData,
		&submitAttemptedAt,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.State = domain.OrderState(state)
	if supplierOrderID.Valid {
		order.SupplierOrderID = &supplierOrderID.String
	}
	order.LogisticsSnapshot = snapshot
	order.LastLogisticsAt = timePtr(lastLogisticsAt)
	order.RequestData = requestData
	order.ResponseData = responseData
	order.SubmitAttemptedAt = timePtr(submitAttemptedAt)
	return &order, nil
}

func (r *supplierOrderRepository) conflict(err error, order *domain.SupplierOrder) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	if strings.Contains(constraint, "local_order_id") {
		return &errors.ErrConflict{Resource: "supplier order", Field: "local_order_id", Value: order.LocalOrderID.String()}
	}
	return &errors.ErrConflict{Resource: "supplier order", Field: "supplier_order_id", Value: order.RemoteID()}
}

func (r *supplierOrderRepository) Create(ctx context.Context, order *domain.SupplierOrder) error {
	query := `
		INSERT INTO supplier_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	now := time.Now().UTC()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.State == "" {
		order.State = domain.OrderStateDraft
	}
	order.Version = 1
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.LocalOrderID,
		order.ConfigID,
		nullString(order.RemoteID()),
		order.SupplierOrderNumber,
		string(order.State),
		order.TrackingNumber,
		order.ShippingMethod,
		nullJSON(order.LogisticsSnapshot),
		nullTime(order.LastLogisticsAt),
		order.LastError,
		nullJSON(order.RequestData),
		nullJSON(order.ResponseData),
		nullTime(order.SubmitAttemptedAt),
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if conflict := r.conflict(err, order); conflict != nil {
			return conflict
		}
		r.logger.Error("Failed to create supplier order", zap.Error(err))
		return err
	}
	return nil
}

func (r *supplierOrderRepository) getOne(ctx context.Context, where string, arg interface{}, id string) (*domain.SupplierOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM supplier_orders WHERE ` + where

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "supplier order", ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get supplier order", zap.String("key", id), zap.Error(err))
		return nil, err
	}
	return order, nil
}

func (r *supplierOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupplierOrder, error) {
	return r.getOne(ctx, "id = $1", id, id.String())
}

func (r *supplierOrderRepository) GetByLocalOrderID(ctx context.Context, localOrderID uuid.UUID) (*domain.SupplierOrder, error) {
	return r.getOne(ctx, "local_order_id = $1", localOrderID, localOrderID.String())
}

func (r *supplierOrderRepository) GetBySupplierOrderID(ctx context.Context, supplierOrderID string) (*domain.SupplierOrder, error) {
	return r.getOne(ctx, "supplier_order_id = $1", supplierOrderID, supplierOrderID)
}

func (r *supplierOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.SupplierOrder, error) {
	var conds []string
	var args []interface{}

	if filter.ConfigID != nil {
		args = append(args, *filter.ConfigID)
		conds = append(conds, fmt.Sprintf("config_id = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		args = append(args, pq.Array(states))
		conds = append(conds, fmt.Sprintf("state = ANY($%d)", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM supplier_orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list supplier orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.SupplierOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// Update only succeeds when the stored version still equals order.Version
func (r *supplierOrderRepository) Update(ctx context.Context, order *domain.SupplierOrder) error {
	query := `
		UPDATE supplier_orders
		SET supplier_order_id = $2, supplier_order_number = $3, state = $4, tracking_number = $5,
			shipping_method = $6, logistics_snapshot = $7, last_logistics_at = $8, last_error = $9,
			request_data = $10, response_data = $11, updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $13
	`

	updatedAt := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		order.ID,
		nullString(order.RemoteID()),
		order.SupplierOrderNumber,
		string(order.State),
		order.TrackingNumber,
		order.ShippingMethod,
		nullJSON(order.LogisticsSnapshot),
		nullTime(order.LastLogisticsAt),
		order.LastError,
		nullJSON(order.RequestData),
		nullJSON(order.ResponseData),
		updatedAt,
		order.Version,
	)
	if err != nil {
		if conflict := r.conflict(err, order); conflict != nil {
			return conflict
		}
		r.logger.Error("Failed to update supplier order", zap.String("id", order.ID.String()), zap.Error(err))
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOrStale(ctx, order.ID)
	}
	order.Version++
	order.UpdatedAt = updatedAt
	return nil
}

// missOrStale explains an update that matched no row
func (r *supplierOrderRepository) missOrStale(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM supplier_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return &errors.ErrNotFound{Resource: "supplier order", ID: id.String()}
	}
	return &errors.ErrConcurrentUpdate{Resource: "supplier order", ID: id.String()}
}

func (r *supplierOrderRepository) ClaimForSubmit(ctx context.Context, id uuid.UUID, now time.Time, ttl time.Duration) (bool, error) {
	query := `
		UPDATE supplier_orders
		SET submit_claimed_at = $2, submit_attempted_at = COALESCE(submit_attempted_at, $2)
		WHERE id = $1
			AND state = 'draft'
			AND supplier_order_id IS NULL
			AND (submit_claimed_at IS NULL OR submit_claimed_at < $3)
	`

	result, err := r.db.ExecContext(ctx, query, id, now.UTC(), now.Add(-ttl).UTC())
	if err != nil {
		r.logger.Error("Failed to claim supplier order for submission", zap.Error(err))
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *supplierOrderRepository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE supplier_orders SET submit_claimed_at = NULL WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		r.logger.Error("Failed to release submission claim", zap.Error(err))
		return err
	}
	return nil
}
