package domain

import "strings"

// OrderState represents the fulfilment state of a supplier order
type OrderState string

const (
	OrderStateDraft      OrderState = "draft"
	OrderStateSubmitted  OrderState = "submitted"
	OrderStateProcessing OrderState = "processing"
	OrderStateShipped    OrderState = "shipped"
	OrderStateDelivered  OrderState = "delivered"
	OrderStateCancelled  OrderState = "cancelled"
	OrderStateError      OrderState = "error"
)

// stateRank orders the linear part of the lifecycle. Side branches
// (cancelled, error) have no rank.
var stateRank = map[OrderState]int{
	OrderStateDraft:      0,
	OrderStateSubmitted:  1,
	OrderStateProcessing: 2,
	OrderStateShipped:    3,
	OrderStateDelivered:  4,
}

func (s OrderState) String() string {
	return string(s)
}

// IsValid checks if the order state is valid
func (s OrderState) IsValid() bool {
	switch s {
	case OrderStateDraft,
		OrderStateSubmitted,
		OrderStateProcessing,
		OrderStateShipped,
		OrderStateDelivered,
		OrderStateCancelled,
		OrderStateError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible
func (s OrderState) IsTerminal() bool {
	return s == OrderStateDelivered || s == OrderStateCancelled
}

// IsOpen reports whether the order is with the supplier and may still change
func (s OrderState) IsOpen() bool {
	return s == OrderStateSubmitted || s == OrderStateProcessing || s == OrderStateShipped
}

// CanTransitionTo checks if a status transition is valid.
// Linear states only move forward; cancelled and error are reachable from
// any non-terminal state. Error is left only through an explicit retry.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	if s == next || s.IsTerminal() || !next.IsValid() {
		return false
	}
	switch next {
	case OrderStateCancelled:
		return s != OrderStateError
	case OrderStateError:
		return true
	}
	if s == OrderStateError {
		return next == OrderStateDraft
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	return stateRank[next] > from
}

// RemoteStatusTable maps the supplier's order status vocabulary to local
// states. Lookups are case-insensitive through MapRemoteStatus.
var RemoteStatusTable = map[string]OrderState{
	"PENDING":    OrderStateSubmitted,
	"PROCESSING": OrderStateProcessing,
	"SHIPPED":    OrderStateShipped,
	"DELIVERED":  OrderStateDelivered,
	"CANCELLED":  OrderStateCancelled,
}

// MapRemoteStatus translates a supplier status string. ok is false for
// statuses outside RemoteStatusTable.
func MapRemoteStatus(status string) (OrderState, bool) {
	state, ok := RemoteStatusTable[strings.ToUpper(strings.TrimSpace(status))]
	return state, ok
}

// WebhookType classifies inbound supplier notifications
type WebhookType string

const (
	WebhookTypeOrderStatus WebhookType = "order_status"
	WebhookTypeTracking    WebhookType = "tracking"
	WebhookTypeInventory   WebhookType = "inventory"
	WebhookTypeOther       WebhookType = "other"
)

// IsValid checks if the webhook type is valid
func (t WebhookType) IsValid() bool {
	switch t {
	case WebhookTypeOrderStatus, WebhookTypeTracking, WebhookTypeInventory, WebhookTypeOther:
		return true
	default:
		return false
	}
}

// ClassifyWebhook derives the notification type from its event name
func ClassifyWebhook(event string) WebhookType {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "order") && strings.Contains(e, "status"):
		return WebhookTypeOrderStatus
	case strings.Contains(e, "tracking"):
		return WebhookTypeTracking
	case strings.Contains(e, "inventory"), strings.Contains(e, "stock"):
		return WebhookTypeInventory
	default:
		return WebhookTypeOther
	}
}

// MarkupType selects how supplier cost is turned into a sale price
type MarkupType string

const (
	MarkupTypePercentage MarkupType = "percentage"
	MarkupTypeFixed      MarkupType = "fixed"
)

// IsValid checks if the markup type is valid
func (t MarkupType) IsValid() bool {
	return t == MarkupTypePercentage || t == MarkupTypeFixed
}

// ConnectionStatus is the result of the last supplier connection test
type ConnectionStatus string

const (
	ConnectionStatusNotTested ConnectionStatus = "not_tested"
	ConnectionStatusConnected ConnectionStatus = "connected"
	ConnectionStatusError     ConnectionStatus = "error"
)
