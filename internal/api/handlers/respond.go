package handlers

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/service"
	"github.com/jafarshop/dropsync/pkg/errors"
)

// OrderResponse represents a supplier order
type OrderResponse struct {
	ID                  string            `json:"id"`
	LocalOrderID        string            `json:"local_order_id"`
	ConfigID            string            `json:"config_id"`
	SupplierOrderID     *string           `json:"supplier_order_id,omitempty"`
	SupplierOrderNumber string            `json:"supplier_order_number,omitempty"`
	State               domain.OrderState `json:"state"`
	TrackingNumber      string            `json:"tracking_number,omitempty"`
	ShippingMethod      string            `json:"shipping_method,omitempty"`
	LastError           string            `json:"last_error,omitempty"`
	LastLogisticsAt     *string           `json:"last_logistics_at,omitempty"`
	CreatedAt           string            `json:"created_at"`
	UpdatedAt           string            `json:"updated_at"`
}

// ActionResponse answers a manual action
type ActionResponse struct {
	service.Notification
	Order *OrderResponse `json:"order,omitempty"`
}

func toOrderResponse(o *domain.SupplierOrder) *OrderResponse {
	resp := &OrderResponse{
		ID:                  o.ID.String(),
		LocalOrderID:        o.LocalOrderID.String(),
		ConfigID:            o.ConfigID.String(),
		SupplierOrderID:     o.SupplierOrderID,
		SupplierOrderNumber: o.SupplierOrderNumber,
		State:               o.State,
		TrackingNumber:      o.TrackingNumber,
		ShippingMethod:      o.ShippingMethod,
		LastError:           o.LastError,
		CreatedAt:           o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           o.UpdatedAt.Format(time.RFC3339),
	}
	if o.LastLogisticsAt != nil {
		at := o.LastLogisticsAt.Format(time.RFC3339)
		resp.LastLogisticsAt = &at
	}
	return resp
}

// statusFor maps an error to the HTTP status of a failed action
func statusFor(err error) int {
	var invalid *errors.ErrInvalidStateTransition
	var noItems *errors.NoEligibleItemsError
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case stderrors.As(err, &invalid), stderrors.As(err, &noItems):
		return http.StatusBadRequest
	case errors.IsConflict(err), errors.IsConcurrentUpdate(err):
		return http.StatusConflict
	case errors.IsSupplierError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure answers a failed manual action with a danger notification
func respondFailure(c *gin.Context, logger *zap.Logger, title string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(title, zap.Error(err))
		message = "internal error"
	}
	c.JSON(status, ActionResponse{Notification: service.Danger(title, message)})
}

// parseID reads a uuid path parameter, answering 400 when it is malformed
func parseID(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label})
		return uuid.Nil, false
	}
	return id, true
}
