package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/pkg/errors"
)

const webhookColumns = `id, config_id, webhook_type, event, supplier_order_id, raw_payload, headers,
		processed, processed_at, error, supplier_order_ref, created_at`

type webhookRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWebhookRecordRepository creates a new webhook record repository
func NewWebhookRecordRepository(db *sql.DB, logger *zap.Logger) *webhookRecordRepository {
	return &webhookRecordRepository{
		db:     db,
		logger: logger,
	}
}

func scanWebhook(row rowScanner) (*domain.WebhookRecord, error) {
	var rec domain.WebhookRecord
	var webhookType string
	var headers []byte
	var processedAt sql.NullTime
	var orderRef uuid.NullUUID

	err := row.Scan(
		&rec.ID,
		&rec.ConfigID,
		&webhookType,
		&rec.Event,
		&rec.SupplierOrderID,
		&rec.RawPayload,
		&headers,
		&rec.Processed,
		&processedAt,
		&rec.Error,
		&orderRef,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = domain.WebhookType(webhookType)
	rec.ProcessedAt = timePtr(processedAt)
	if orderRef.Valid {
		rec.SupplierOrderRef = &orderRef.UUID
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &rec.Headers); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (r *webhookRecordRepository) Create(ctx context.Context, rec *domain.WebhookRecord) error {
	query := `
		INSERT INTO webhook_records (` + webhookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now().UTC()

	headers := rec.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.ConfigID,
		string(rec.Type),
		rec.Event,
		rec.SupplierOrderID,
		rec.RawPayload,
		headersJSON,
		rec.Processed,
		nullTime(rec.ProcessedAt),
		rec.Error,
		nullUUID(rec.SupplierOrderRef),
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create webhook record", zap.Error(err))
		return err
	}
	return nil
}

func (r *webhookRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookRecord, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_records WHERE id = $1`

	rec, err := scanWebhook(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "webhook record", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get webhook record by ID", zap.Error(err))
		return nil, err
	}
	return rec, nil
}

func (r *webhookRecordRepository) ListUnprocessed(ctx context.Context, limit int) ([]*domain.WebhookRecord, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhook_records
		WHERE processed = false
		ORDER BY created_at ASC
		LIMIT $1
	`
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list unprocessed webhook records", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var records []*domain.WebhookRecord
	for rows.Next() {
		rec, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *webhookRecordRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time, note string, orderRef *uuid.UUID) (bool, error) {
	query := `
		UPDATE webhook_records
		SET processed = true, processed_at = $2, error = $3,
			supplier_order_ref = COALESCE($4, supplier_order_ref)
		WHERE id = $1 AND processed = false
	`

	result, err := r.db.ExecContext(ctx, query, id, processedAt.UTC(), note, nullUUID(orderRef))
	if err != nil {
		r.logger.Error("Failed to mark webhook record processed", zap.Error(err))
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *webhookRecordRepository) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	query := `UPDATE webhook_records SET error = $2 WHERE id = $1 AND processed = false`

	if _, err := r.db.ExecContext(ctx, query, id, message); err != nil {
		r.logger.Error("Failed to record webhook error", zap.Error(err))
		return err
	}
	return nil
}
