package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/internal/service"
	"github.com/jafarshop/dropsync/pkg/errors"
)

// HandleListOrders handles GET /v1/admin/orders
func HandleListOrders(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 || limit > 100 {
			limit = 50
		}

		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			offset = 0
		}

		filter := repository.OrderFilter{Limit: limit, Offset: offset}
		if stateStr := c.Query("state"); stateStr != "" {
			state := domain.OrderState(stateStr)
			if !state.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
				return
			}
			filter.States = []domain.OrderState{state}
		}
		if configStr := c.Query("config_id"); configStr != "" {
			configID, err := uuid.Parse(configStr)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config ID"})
				return
			}
			filter.ConfigID = &configID
		}

		orders, err := repos.SupplierOrder.List(c.Request.Context(), filter)
		if err != nil {
			logger.Error("Failed to list orders", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		responses := make([]*OrderResponse, len(orders))
		for i, order := range orders {
			responses[i] = toOrderResponse(order)
		}

		c.JSON(http.StatusOK, gin.H{
			"orders": responses,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// HandleGetOrder handles GET /v1/admin/orders/:id
func HandleGetOrder(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseID(c, "id", "order ID")
		if !ok {
			return
		}

		order, err := repos.SupplierOrder.GetByID(c.Request.Context(), orderID)
		if err != nil {
			if _, ok := err.(*errors.ErrNotFound); ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			logger.Error("Failed to get order", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		events, err := repos.OrderEvent.ListByLocalOrderID(c.Request.Context(), order.LocalOrderID)
		if err != nil {
			logger.Error("Failed to get order events", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		activity := make([]gin.H, len(events))
		for i, e := range events {
			activity[i] = gin.H{
				"type":       e.EventType,
				"message":    e.Message,
				"data":       e.EventData,
				"created_at": e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"order":    toOrderResponse(order),
			"activity": activity,
		})
	}
}

// orderAction runs one engine operation on the order in the :id parameter
type orderAction func(ctx context.Context, id uuid.UUID) (*domain.SupplierOrder, error)

func handleOrderAction(title string, success func(o *domain.SupplierOrder) string, action orderAction, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseID(c, "id", "order ID")
		if !ok {
			return
		}

		order, err := action(c.Request.Context(), orderID)
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		c.JSON(http.StatusOK, ActionResponse{
			Notification: service.Success(title, success(order)),
			Order:        toOrderResponse(order),
		})
	}
}

// HandleSubmitOrder handles POST /v1/admin/orders/:id/submit
func HandleSubmitOrder(orders *service.OrderSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return handleOrderAction("Submit to supplier", func(o *domain.SupplierOrder) string {
		return fmt.Sprintf("Order submitted to supplier: %s", o.RemoteID())
	}, orders.Submit, logger)
}

// HandleRefreshOrder handles POST /v1/admin/orders/:id/refresh
func HandleRefreshOrder(orders *service.OrderSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return handleOrderAction("Refresh status", func(o *domain.SupplierOrder) string {
		return fmt.Sprintf("Order status: %s", o.State)
	}, orders.RefreshStatus, logger)
}

// HandleRefreshLogistics handles POST /v1/admin/orders/:id/logistics
func HandleRefreshLogistics(orders *service.OrderSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return handleOrderAction("Refresh tracking", func(o *domain.SupplierOrder) string {
		if o.TrackingNumber == "" {
			return "No tracking number yet"
		}
		return fmt.Sprintf("Tracking number: %s", o.TrackingNumber)
	}, orders.RefreshLogistics, logger)
}

// HandleRetryOrder handles POST /v1/admin/orders/:id/retry
func HandleRetryOrder(orders *service.OrderSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return handleOrderAction("Retry order", func(*domain.SupplierOrder) string {
		return "Order reset to draft"
	}, orders.Retry, logger)
}

// HandleSubmitLocalOrder handles POST /v1/admin/local-orders/:id/submit
func HandleSubmitLocalOrder(orders *service.OrderSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return handleOrderAction("Submit to supplier", func(o *domain.SupplierOrder) string {
		return fmt.Sprintf("Order submitted to supplier: %s", o.RemoteID())
	}, orders.SubmitLocalOrder, logger)
}
