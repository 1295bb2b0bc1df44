package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/internal/supplier"
)

// SupplierAPI is the part of the supplier client the engines call
type SupplierAPI interface {
	ListProducts(ctx context.Context, params supplier.ProductListParams) (*supplier.ProductPage, error)
	GetProduct(ctx context.Context, pid string) (*supplier.ProductDetail, error)
	GetInventory(ctx context.Context, pid, vid string) (*supplier.Inventory, error)
	CreateOrder(ctx context.Context, req supplier.CreateOrderRequest) (*supplier.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (*supplier.OrderDetail, error)
	FindOrderByNumber(ctx context.Context, orderNumber string) (*supplier.OrderDetail, error)
	QueryLogistics(ctx context.Context, orderID string) (*supplier.Logistics, error)
	ListCategories(ctx context.Context) ([]supplier.Category, error)
}

// ClientProvider returns the supplier client for an account
type ClientProvider interface {
	Client(ctx context.Context, configID uuid.UUID) (SupplierAPI, error)
}

type registryProvider struct {
	registry *supplier.Registry
}

// NewRegistryProvider adapts a supplier registry to ClientProvider
func NewRegistryProvider(registry *supplier.Registry) ClientProvider {
	return &registryProvider{registry: registry}
}

func (p *registryProvider) Client(ctx context.Context, configID uuid.UUID) (SupplierAPI, error) {
	client, err := p.registry.Client(ctx, configID)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (p *registryProvider) Forget(ctx context.Context, configID uuid.UUID) error {
	return p.registry.Forget(ctx, configID)
}

// clientCache is implemented by providers that keep clients or sessions
// built from an account's credential
type clientCache interface {
	Forget(ctx context.Context, configID uuid.UUID) error
}

// ActivitySink receives customer-visible notes about a local order
type ActivitySink interface {
	Post(ctx context.Context, localOrderID uuid.UUID, eventType, message string, data map[string]interface{}) error
}

type eventActivitySink struct {
	events repository.OrderEventRepository
}

// NewEventActivitySink writes activity to the order event trail
func NewEventActivitySink(events repository.OrderEventRepository) ActivitySink {
	return &eventActivitySink{events: events}
}

func (s *eventActivitySink) Post(ctx context.Context, localOrderID uuid.UUID, eventType, message string, data map[string]interface{}) error {
	return s.events.Create(ctx, &domain.OrderEvent{
		LocalOrderID: localOrderID,
		EventType:    eventType,
		Message:      message,
		EventData:    data,
	})
}

// postActivity posts to sink and only logs a failure. Activity never rolls
// back the change it describes.
func postActivity(ctx context.Context, sink ActivitySink, logger *zap.Logger, localOrderID uuid.UUID, eventType, message string, data map[string]interface{}) {
	if err := sink.Post(ctx, localOrderID, eventType, message, data); err != nil {
		logger.Warn("Failed to post order activity",
			zap.String("local_order_id", localOrderID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
