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

const configColumns = `id, name, active, email, api_secret, auto_fulfill_orders, markup_type, markup_amount,
		webhook_enabled, sync_interval_hours, connection_status, connection_message, created_at, updated_at`

type supplierConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSupplierConfigRepository creates a new supplier config repository
func NewSupplierConfigRepository(db *sql.DB, logger *zap.Logger) *supplierConfigRepository {
	return &supplierConfigRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*domain.SupplierConfig, error) {
	var cfg domain.SupplierConfig
	var markupType, connStatus string

	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Active,
		&cfg.Credential.Email,
		&cfg.Credential.Secret,
		&cfg.AutoFulfillOrders,
		&markupType,
		&cfg.Markup.Amount,
		&cfg.WebhookEnabled,
		&cfg.SyncIntervalHours,
		&connStatus,
		&cfg.ConnectionMessage,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Markup.Type = domain.MarkupType(markupType)
	cfg.ConnectionStatus = domain.ConnectionStatus(connStatus)
	return &cfg, nil
}

func (r *supplierConfigRepository) Create(ctx context.Context, cfg *domain.SupplierConfig) error {
	query := `
		INSERT INTO supplier_configs (` + configColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	now := time.Now().UTC()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.ConnectionStatus == "" {
		cfg.ConnectionStatus = domain.ConnectionStatusNotTested
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.Name,
		cfg.Active,
		cfg.Credential.Email,
		cfg.Credential.Secret,
		cfg.AutoFulfillOrders,
		string(cfg.Markup.Type),
		cfg.Markup.Amount,
		cfg.WebhookEnabled,
		cfg.SyncIntervalHours,
		string(cfg.ConnectionStatus),
		cfg.ConnectionMessage,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create supplier config", zap.String("name", cfg.Name), zap.Error(err))
		return err
	}
	return nil
}

func (r *supplierConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupplierConfig, error) {
	query := `SELECT ` + configColumns + ` FROM supplier_configs WHERE id = $1`

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "supplier config", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get supplier config by ID", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

func (r *supplierConfigRepository) GetDefault(ctx context.Context) (*domain.SupplierConfig, error) {
	query := `
		SELECT ` + configColumns + `
		FROM supplier_configs
		WHERE active = true
		ORDER BY created_at ASC
		LIMIT 1
	`

	cfg, err := scanConfig(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "supplier config", ID: "default"}
	}
	if err != nil {
		r.logger.Error("Failed to get default supplier config", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

func (r *supplierConfigRepository) List(ctx context.Context) ([]*domain.SupplierConfig, error) {
	query := `SELECT ` + configColumns + ` FROM supplier_configs ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list supplier configs", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.SupplierConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *supplierConfigRepository) UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus, message string) error {
	query := `
		UPDATE supplier_configs
		SET connection_status = $2, connection_message = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, string(status), message, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to update connection status", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "supplier config", ID: id.String()}
	}
	return nil
}

func (r *supplierConfigRepository) UpdateCredential(ctx context.Context, id uuid.UUID, cred domain.Credential) error {
	query := `
		UPDATE supplier_configs
		SET email = $2, api_secret = $3, connection_status = $4, connection_message = '', updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, cred.Email, cred.Secret,
		string(domain.ConnectionStatusNotTested), time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to update supplier credential", zap.String("config_id", id.String()), zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "supplier config", ID: id.String()}
	}
	return nil
}
