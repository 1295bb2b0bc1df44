package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/pkg/errors"
)

const (
	AckSuccess = "success"
	AckError   = "error"

	redactedHeader = "[redacted]"
)

// secretHeaders are stored redacted on webhook records
var secretHeaders = map[string]bool{
	"Authorization":   true,
	"Cj-Access-Token": true,
	"Cookie":          true,
}

// WebhookIngestor records supplier notifications and routes them to the
// order and catalog engines
type WebhookIngestor struct {
	repos   *repository.Repositories
	orders  *OrderSyncEngine
	catalog *CatalogSyncEngine
	metrics metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewWebhookIngestor creates a new webhook ingestor
func NewWebhookIngestor(
	repos *repository.Repositories,
	orders *OrderSyncEngine,
	catalog *CatalogSyncEngine,
	rec metrics.Recorder,
	logger *zap.Logger,
) *WebhookIngestor {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &WebhookIngestor{
		repos:   repos,
		orders:  orders,
		catalog: catalog,
		metrics: rec,
		logger:  logger,
		now:     time.Now,
	}
}

// Ingest persists a notification and processes it. It always returns an
// acknowledgement; processing failures stay on the record.
func (w *WebhookIngestor) Ingest(ctx context.Context, configID uuid.UUID, raw []byte, headers http.Header) Ack {
	cfg, err := w.repos.SupplierConfig.GetByID(ctx, configID)
	if err != nil && !errors.IsNotFound(err) {
		w.logger.Error("Failed to load supplier config for webhook", zap.String("config_id", configID.String()), zap.Error(err))
		return Ack{Status: AckError, Message: "Internal error"}
	}
	if err != nil || !cfg.WebhookEnabled {
		w.metrics.RecordWebhook(string(domain.WebhookTypeOther), "rejected")
		return Ack{Status: AckError, Message: "Webhook not enabled"}
	}

	record := &domain.WebhookRecord{
		ConfigID:   configID,
		Type:       domain.WebhookTypeOther,
		RawPayload: raw,
		Headers:    redactHeaders(headers),
	}
	if payload, perr := domain.ParseWebhookPayload(raw); perr == nil {
		record.Event = payload.Event
		record.Type = domain.ClassifyWebhook(payload.Event)
		record.SupplierOrderID = string(payload.OrderID)
	}

	if err := w.repos.WebhookRecord.Create(ctx, record); err != nil {
		w.logger.Error("Failed to record webhook", zap.String("config_id", configID.String()), zap.Error(err))
		w.metrics.RecordWebhook(string(record.Type), "failed")
		return Ack{Status: AckError, Message: "Failed to record webhook"}
	}

	w.logger.Info("Webhook received",
		zap.String("webhook_id", record.ID.String()),
		zap.String("type", string(record.Type)),
		zap.String("event", record.Event),
	)

	if _, err := w.process(ctx, record); err != nil {
		return Ack{Status: AckSuccess, Message: "Webhook received, processing deferred"}
	}
	return Ack{Status: AckSuccess, Message: "Webhook processed"}
}

// Process runs a stored notification through its handler. Records that are
// already processed are returned unchanged.
func (w *WebhookIngestor) Process(ctx context.Context, recordID uuid.UUID) (*domain.WebhookRecord, error) {
	record, err := w.repos.WebhookRecord.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return w.process(ctx, record)
}

// ProcessPending retries up to limit unprocessed records
func (w *WebhookIngestor) ProcessPending(ctx context.Context, limit int) (BatchResult, error) {
	var result BatchResult

	records, err := w.repos.WebhookRecord.ListUnprocessed(ctx, limit)
	if err != nil {
		return result, err
	}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		if _, err := w.process(ctx, record); err != nil {
			result.Failed++
		}
	}
	return result, nil
}

func (w *WebhookIngestor) process(ctx context.Context, record *domain.WebhookRecord) (*domain.WebhookRecord, error) {
	if record.Processed {
		w.metrics.RecordWebhook(string(record.Type), "duplicate")
		return record, nil
	}

	logger := w.logger.With(
		zap.String("webhook_id", record.ID.String()),
		zap.String("type", string(record.Type)),
	)

	outcome, err := w.dispatch(ctx, record)
	if err != nil {
		logger.Warn("Webhook processing failed", zap.Error(err))
		if rerr := w.repos.WebhookRecord.RecordError(ctx, record.ID, err.Error()); rerr != nil {
			logger.Error("Failed to record webhook error", zap.Error(rerr))
		}
		record.Error = err.Error()
		w.metrics.RecordWebhook(string(record.Type), "failed")
		return record, err
	}

	processedAt := w.now().UTC()
	flipped, err := w.repos.WebhookRecord.MarkProcessed(ctx, record.ID, processedAt, outcome.note, outcome.orderRef)
	if err != nil {
		logger.Error("Failed to mark webhook processed", zap.Error(err))
		return record, err
	}
	if !flipped {
		w.metrics.RecordWebhook(string(record.Type), "duplicate")
		return record, nil
	}

	record.Processed = true
	record.ProcessedAt = &processedAt
	record.Error = outcome.note
	record.SupplierOrderRef = outcome.orderRef

	if outcome.note != "" {
		logger.Info("Webhook dropped", zap.String("reason", outcome.note))
		w.metrics.RecordWebhook(string(record.Type), "dropped")
	} else {
		w.metrics.RecordWebhook(string(record.Type), "processed")
	}
	return record, nil
}

// handled is the result of a handler. A non-empty note means the
// notification was dropped without effect.
type handled struct {
	note     string
	orderRef *uuid.UUID
}

func (w *WebhookIngestor) dispatch(ctx context.Context, record *domain.WebhookRecord) (handled, error) {
	payload, err := domain.ParseWebhookPayload(record.RawPayload)
	if err != nil {
		return handled{note: err.Error()}, nil
	}

	switch record.Type {
	case domain.WebhookTypeOrderStatus:
		return w.handleOrderStatus(ctx, payload)
	case domain.WebhookTypeTracking:
		return w.handleTracking(ctx, payload, record.RawPayload)
	case domain.WebhookTypeInventory:
		return w.handleInventory(ctx, payload)
	default:
		return handled{}, nil
	}
}

func (w *WebhookIngestor) findOrder(ctx context.Context, payload *domain.WebhookPayload) (*domain.SupplierOrder, string, error) {
	if payload.OrderID == "" {
		return nil, "missing orderId", nil
	}
	order, err := w.repos.SupplierOrder.GetBySupplierOrderID(ctx, string(payload.OrderID))
	if errors.IsNotFound(err) {
		return nil, (&errors.MappingNotFoundError{Kind: "order", Key: string(payload.OrderID)}).Error(), nil
	}
	if err != nil {
		return nil, "", err
	}
	return order, "", nil
}

func (w *WebhookIngestor) handleOrderStatus(ctx context.Context, payload *domain.WebhookPayload) (handled, error) {
	order, note, err := w.findOrder(ctx, payload)
	if order == nil {
		return handled{note: note}, err
	}

	_, err = w.orders.ApplyRemoteStatus(ctx, order, domain.RemoteOrderUpdate{
		Status:         payload.Status,
		TrackingNumber: string(payload.TrackingNumber),
		ShippingMethod: payload.ShippingMethod,
	}, "webhook")
	if err != nil {
		return handled{}, err
	}
	return handled{orderRef: &order.ID}, nil
}

func (w *WebhookIngestor) handleTracking(ctx context.Context, payload *domain.WebhookPayload, raw json.RawMessage) (handled, error) {
	order, note, err := w.findOrder(ctx, payload)
	if order == nil {
		return handled{note: note}, err
	}
	if payload.TrackingNumber == "" {
		return handled{note: "missing trackingNumber", orderRef: &order.ID}, nil
	}

	_, err = w.orders.RecordLogistics(ctx, order, domain.LogisticsUpdate{
		TrackingNumber: string(payload.TrackingNumber),
		ShippingMethod: payload.ShippingMethod,
		Snapshot:       raw,
	}, "webhook")
	if err != nil {
		return handled{}, err
	}
	return handled{orderRef: &order.ID}, nil
}

func (w *WebhookIngestor) handleInventory(ctx context.Context, payload *domain.WebhookPayload) (handled, error) {
	if payload.ProductID == "" || payload.Quantity == nil {
		return handled{note: "missing productId or quantity"}, nil
	}

	_, err := w.catalog.ApplyInventory(ctx, string(payload.ProductID), string(payload.VariantID), int(*payload.Quantity))
	if errors.IsMappingNotFound(err) {
		return handled{note: err.Error()}, nil
	}
	if err != nil {
		return handled{}, err
	}
	return handled{}, nil
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		key := http.CanonicalHeaderKey(name)
		if secretHeaders[key] {
			out[key] = redactedHeader
			continue
		}
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}
