package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexString decodes a JSON string or number into a string. The supplier
// is not consistent about id types.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = FlexString(n.String())
	return nil
}

// FlexInt decodes a JSON number or numeric string into an int
type FlexInt int

func (i *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*i = 0
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	if raw == "" {
		*i = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	*i = FlexInt(int(f))
	return nil
}

// WebhookPayload holds the keys this service reads from a notification.
// Unknown keys are kept only in the raw payload.
type WebhookPayload struct {
	Event          string     `json:"event"`
	OrderID        FlexString `json:"orderId"`
	OrderNumber    FlexString `json:"orderNum"`
	Status         string     `json:"status"`
	TrackingNumber FlexString `json:"trackingNumber"`
	ShippingMethod string     `json:"shippingMethod"`
	ProductID      FlexString `json:"productId"`
	VariantID      FlexString `json:"variantId"`
	Quantity       *FlexInt   `json:"quantity"`
}

// ParseWebhookPayload decodes a raw notification body
func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return &p, nil
}
