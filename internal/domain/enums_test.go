package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderState
		to   OrderState
		want bool
	}{
		{OrderStateDraft, OrderStateSubmitted, true},
		{OrderStateSubmitted, OrderStateProcessing, true},
		{OrderStateSubmitted, OrderStateShipped, true},
		{OrderStateProcessing, OrderStateShipped, true},
		{OrderStateShipped, OrderStateDelivered, true},
		{OrderStateProcessing, OrderStateSubmitted, false},
		{OrderStateShipped, OrderStateProcessing, false},
		{OrderStateShipped, OrderStateShipped, false},
		{OrderStateSubmitted, OrderStateCancelled, true},
		{OrderStateShipped, OrderStateCancelled, true},
		{OrderStateDraft, OrderStateError, true},
		{OrderStateError, OrderStateDraft, true},
		{OrderStateError, OrderStateSubmitted, false},
		{OrderStateError, OrderStateCancelled, false},
		{OrderStateDelivered, OrderStateCancelled, false},
		{OrderStateCancelled, OrderStateSubmitted, false},
		{OrderStateDelivered, OrderStateError, false},
		{OrderStateDraft, OrderState("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderState_Predicates(t *testing.T) {
	assert.True(t, OrderStateDelivered.IsTerminal())
	assert.True(t, OrderStateCancelled.IsTerminal())
	assert.False(t, OrderStateError.IsTerminal())

	assert.True(t, OrderStateSubmitted.IsOpen())
	assert.True(t, OrderStateShipped.IsOpen())
	assert.False(t, OrderStateDraft.IsOpen())
	assert.False(t, OrderStateDelivered.IsOpen())
}

func TestMapRemoteStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   OrderState
		wantOK bool
	}{
		{"PENDING", OrderStateSubmitted, true},
		{"processing", OrderStateProcessing, true},
		{" Shipped ", OrderStateShipped, true},
		{"DELIVERED", OrderStateDelivered, true},
		{"CANCELLED", OrderStateCancelled, true},
		{"IN_CART", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := MapRemoteStatus(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyWebhook(t *testing.T) {
	tests := []struct {
		event string
		want  WebhookType
	}{
		{"orderStatusChanged", WebhookTypeOrderStatus},
		{"ORDER_STATUS", WebhookTypeOrderStatus},
		{"order.created", WebhookTypeOther},
		{"trackingUpdated", WebhookTypeTracking},
		{"TRACKING", WebhookTypeTracking},
		{"inventoryChanged", WebhookTypeInventory},
		{"lowStock", WebhookTypeInventory},
		{"productUpdated", WebhookTypeOther},
		{"", WebhookTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyWebhook(tt.event))
		})
	}
}
