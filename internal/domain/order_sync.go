package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// RemoteOrderUpdate is the part of a supplier order query result or status
// notification that drives the state machine
type RemoteOrderUpdate struct {
	Status         string
	TrackingNumber string
	ShippingMethod string
}

// LogisticsUpdate carries tracking data from a logistics query or a
// tracking notification
type LogisticsUpdate struct {
	TrackingNumber string
	ShippingMethod string
	Snapshot       json.RawMessage
}

// Change describes what an update did to a SupplierOrder
type Change struct {
	From            OrderState
	To              OrderState
	StateChanged    bool
	TrackingChanged bool
	FieldsChanged   bool
}

// Changed reports whether the order needs to be persisted
func (c Change) Changed() bool {
	return c.StateChanged || c.TrackingChanged || c.FieldsChanged
}

// ApplyRemoteStatus merges a remote status into the order. The state only
// moves strictly forward (or onto the cancelled branch); stale or repeated
// statuses leave it untouched while tracking fields are still refreshed.
// Applying the same update twice changes nothing the second time.
func (o *SupplierOrder) ApplyRemoteStatus(u RemoteOrderUpdate) Change {
	ch := Change{From: o.State, To: o.State}

	if next, ok := MapRemoteStatus(u.Status); ok && o.State != OrderStateError && o.State.CanTransitionTo(next) {
		o.State = next
		ch.To = next
		ch.StateChanged = true
	}

	o.mergeTracking(u.TrackingNumber, u.ShippingMethod, &ch)
	return ch
}

// RecordLogistics merges tracking data and the logistics snapshot. A
// tracking number arriving while submitted or processing means the parcel
// has shipped.
func (o *SupplierOrder) RecordLogistics(u LogisticsUpdate, now time.Time) Change {
	ch := Change{From: o.State, To: o.State}

	o.mergeTracking(u.TrackingNumber, u.ShippingMethod, &ch)

	if snapshot := compactJSON(u.Snapshot); len(snapshot) > 0 && !bytes.Equal(snapshot, compactJSON(o.LogisticsSnapshot)) {
		o.LogisticsSnapshot = snapshot
		t := now.UTC()
		o.LastLogisticsAt = &t
		ch.FieldsChanged = true
	}

	if u.TrackingNumber != "" && (o.State == OrderStateSubmitted || o.State == OrderStateProcessing) {
		o.State = OrderStateShipped
		ch.To = OrderStateShipped
		ch.StateChanged = true
	}
	return ch
}

func (o *SupplierOrder) mergeTracking(tracking, method string, ch *Change) {
	if tracking != "" && tracking != o.TrackingNumber {
		o.TrackingNumber = tracking
		ch.TrackingChanged = true
	}
	if method != "" && method != o.ShippingMethod {
		o.ShippingMethod = method
		ch.FieldsChanged = true
	}
}

func compactJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	if buf.String() == "null" {
		return nil
	}
	return buf.Bytes()
}
