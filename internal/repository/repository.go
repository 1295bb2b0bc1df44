package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jafarshop/dropsync/internal/domain"
)

// Repositories groups every record store the service uses
type Repositories struct {
	SupplierConfig  SupplierConfigRepository
	SupplierOrder   SupplierOrderRepository
	SupplierProduct SupplierProductRepository
	WebhookRecord   WebhookRecordRepository
	LocalOrder      LocalOrderRepository
	LocalProduct    LocalProductRepository
	OrderEvent      OrderEventRepository
}

type SupplierConfigRepository interface {
	Create(ctx context.Context, cfg *domain.SupplierConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SupplierConfig, error)
	// GetDefault returns the oldest active config
	GetDefault(ctx context.Context) (*domain.SupplierConfig, error)
	List(ctx context.Context) ([]*domain.SupplierConfig, error)
	UpdateConnectionStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus, message string) error
	// UpdateCredential replaces the credential and resets the connection
	// status to not tested
	UpdateCredential(ctx context.Context, id uuid.UUID, cred domain.Credential) error
}

// OrderFilter narrows SupplierOrder listings. Zero values match everything.
type OrderFilter struct {
	ConfigID *uuid.UUID
	States   []domain.OrderState
	Limit    int
	Offset   int
}

type SupplierOrderRepository interface {
	// Create fails with ErrConflict when the local order already has one
	Create(ctx context.Context, order *domain.SupplierOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SupplierOrder, error)
	GetByLocalOrderID(ctx context.Context, localOrderID uuid.UUID) (*domain.SupplierOrder, error)
	GetBySupplierOrderID(ctx context.Context, supplierOrderID string) (*domain.SupplierOrder, error)
	List(ctx context.Context, filter OrderFilter) ([]*domain.SupplierOrder, error)
	// Update writes the mutable fields and bumps order.Version. It fails
	// with ErrConcurrentUpdate when the stored version no longer matches
	// order.Version, and with ErrConflict when the supplier order id is held
	// by another record.
	Update(ctx context.Context, order *domain.SupplierOrder) error
	// ClaimForSubmit atomically marks a draft without a supplier order id as
	// being submitted and stamps SubmitAttemptedAt on the first claim. It
	// returns false when the order is not a draft, already has a supplier
	// id, or holds a claim younger than ttl.
	ClaimForSubmit(ctx context.Context, id uuid.UUID, now time.Time, ttl time.Duration) (bool, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
}

type SupplierProductRepository interface {
	// Upsert inserts or updates the record keyed by (product id, variant id)
	// and sets product.ID to the stored id
	Upsert(ctx context.Context, product *domain.SupplierProduct) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SupplierProduct, error)
	GetByKey(ctx context.Context, supplierProductID, supplierVariantID string) (*domain.SupplierProduct, error)
	ListBySupplierProductID(ctx context.Context, supplierProductID string) ([]*domain.SupplierProduct, error)
	ListByConfig(ctx context.Context, configID uuid.UUID) ([]*domain.SupplierProduct, error)
	UpdateStock(ctx context.Context, id uuid.UUID, qty int, syncedAt time.Time) error
	LinkLocalProduct(ctx context.Context, id, localProductID uuid.UUID) error
	// RecordSyncError stores the message of a failed sync. Upsert overwrites
	// it with product.LastError.
	RecordSyncError(ctx context.Context, id uuid.UUID, message string) error
}

type WebhookRecordRepository interface {
	Create(ctx context.Context, record *domain.WebhookRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookRecord, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.WebhookRecord, error)
	// MarkProcessed flips processed once. It returns false when the record
	// was already processed.
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time, note string, orderRef *uuid.UUID) (bool, error)
	RecordError(ctx context.Context, id uuid.UUID, message string) error
}

type LocalOrderRepository interface {
	Create(ctx context.Context, order *domain.LocalOrder) error
	// GetByID returns the order with each line's supplier mapping resolved
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LocalOrder, error)
}

type LocalProductRepository interface {
	Create(ctx context.Context, product *domain.LocalProduct) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LocalProduct, error)
	Update(ctx context.Context, product *domain.LocalProduct) error
	UpdatePricing(ctx context.Context, id uuid.UUID, listPrice, costPrice decimal.Decimal) error
}

type OrderEventRepository interface {
	Create(ctx context.Context, event *domain.OrderEvent) error
	ListByLocalOrderID(ctx context.Context, localOrderID uuid.UUID) ([]*domain.OrderEvent, error)
}
