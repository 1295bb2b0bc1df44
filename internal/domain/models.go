package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Credential authenticates one supplier account. It renders redacted when
// formatted so it never ends up in logs.
type Credential struct {
	Email  string
	Secret string
}

func (c Credential) String() string {
	return "Credential{redacted}"
}

// GoString keeps %#v from printing the fields
func (c Credential) GoString() string {
	return c.String()
}

// IsComplete reports whether both parts are set
func (c Credential) IsComplete() bool {
	return c.Email != "" && c.Secret != ""
}

// SupplierConfig holds the settings of one supplier account
type SupplierConfig struct {
	ID                uuid.UUID
	Name              string
	Active            bool
	Credential        Credential
	AutoFulfillOrders bool
	Markup            MarkupRule
	WebhookEnabled    bool
	SyncIntervalHours int
	ConnectionStatus  ConnectionStatus
	ConnectionMessage string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks the config invariants
func (c *SupplierConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name is required")
	}
	if c.SyncIntervalHours < 1 {
		return fmt.Errorf("sync interval must be at least 1 hour")
	}
	return c.Markup.Validate()
}

// SupplierOrder tracks the fulfilment of one local order with the supplier
type SupplierOrder struct {
	ID                  uuid.UUID
	LocalOrderID        uuid.UUID
	ConfigID            uuid.UUID
	SupplierOrderID     *string
	SupplierOrderNumber string
	State               OrderState
	TrackingNumber      string
	ShippingMethod      string
	LogisticsSnapshot   json.RawMessage
	LastLogisticsAt     *time.Time
	LastError           string
	RequestData         json.RawMessage
	ResponseData        json.RawMessage
	// SubmitAttemptedAt is set by the first submission claim and never
	// cleared. A set value means the supplier may already hold the order.
	SubmitAttemptedAt   *time.Time
	// Version is bumped on every write and guards against lost updates
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewSupplierOrder creates a draft supplier order for a local order
func NewSupplierOrder(localOrderID, configID uuid.UUID) *SupplierOrder {
	return &SupplierOrder{
		ID:           uuid.New(),
		LocalOrderID: localOrderID,
		ConfigID:     configID,
		State:        OrderStateDraft,
	}
}

// RemoteID returns the supplier order id or "" when not yet assigned
func (o *SupplierOrder) RemoteID() string {
	if o.SupplierOrderID == nil {
		return ""
	}
	return *o.SupplierOrderID
}

// HasRemoteID reports whether the supplier assigned an order id
func (o *SupplierOrder) HasRemoteID() bool {
	return o.RemoteID() != ""
}

// SupplierProduct mirrors one supplier product or variant
type SupplierProduct struct {
	ID                uuid.UUID
	ConfigID          uuid.UUID
	SupplierProductID string
	// SupplierVariantID is empty when the record describes the base product
	SupplierVariantID string
	Name              string
	SKU               string
	Description       string
	CategoryName      string
	ImageURL          string
	Weight            decimal.Decimal
	CostPrice         decimal.Decimal
	SellPrice         decimal.Decimal
	StockQty          int
	LocalProductRef   *uuid.UUID
	Active            bool
	// LastError holds the message of the latest failed sync
	LastError         string
	SyncedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WebhookRecord is the append-only audit entry of one inbound notification
type WebhookRecord struct {
	ID               uuid.UUID
	ConfigID         uuid.UUID
	Type             WebhookType
	Event            string
	SupplierOrderID  string
	RawPayload       []byte
	Headers          map[string]string
	Processed        bool
	ProcessedAt      *time.Time
	Error            string
	SupplierOrderRef *uuid.UUID
	CreatedAt        time.Time
}

// ShippingAddress is the snapshot sent to the supplier
type ShippingAddress struct {
	ContactName string
	Phone       string
	Email       string
	Country     string // ISO country code
	State       string
	City        string
	ZipCode     string
	Address     string
	Address2    string
}

// LocalOrder is the part of the host order this service reads
type LocalOrder struct {
	ID       uuid.UUID
	Name     string
	Note     string
	Shipping ShippingAddress
	Lines    []LocalOrderLine
}

// LocalOrderLine is one host order line. SupplierProductID is set when the
// line's product resolves to a supplier product mapping.
type LocalOrderLine struct {
	ProductRef        uuid.UUID
	Quantity          int
	SupplierFulfilled bool
	SupplierProductID string
	SupplierVariantID string
}

// IsEligible reports whether the line can be sent to the supplier
func (l LocalOrderLine) IsEligible() bool {
	return l.SupplierFulfilled && l.SupplierProductID != "" && l.Quantity > 0
}

// HasSupplierLines reports whether any line is flagged for the supplier
func (o *LocalOrder) HasSupplierLines() bool {
	for _, l := range o.Lines {
		if l.SupplierFulfilled {
			return true
		}
	}
	return false
}

// EligibleLines returns the lines that can be sent to the supplier
func (o *LocalOrder) EligibleLines() []LocalOrderLine {
	lines := make([]LocalOrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		if l.IsEligible() {
			lines = append(lines, l)
		}
	}
	return lines
}

// OrderEvent is an entry in a local order's activity trail
type OrderEvent struct {
	ID           uuid.UUID
	LocalOrderID uuid.UUID
	EventType    string
	Message      string
	EventData    map[string]interface{} // JSONB
	CreatedAt    time.Time
}

// LocalProduct is the host catalog entry a SupplierProduct can write
// prices through to
type LocalProduct struct {
	ID                uuid.UUID
	Name              string
	SKU               string
	ListPrice         decimal.Decimal
	CostPrice         decimal.Decimal
	SupplierFulfilled bool
	UpdatedAt         time.Time
}
