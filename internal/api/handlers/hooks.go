package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/service"
)

// HandleOrderConfirmed handles POST /v1/hooks/local-orders/:id/confirmed.
// The host's confirmation never fails because of supplier fulfilment.
func HandleOrderConfirmed(orders *service.OrderSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		localOrderID, ok := parseID(c, "id", "local order ID")
		if !ok {
			return
		}

		// the supplier call must reach a definite outcome even if the host
		// hangs up
		orders.OnOrderConfirmed(context.WithoutCancel(c.Request.Context()), localOrderID)

		logger.Debug("Order confirmation hook handled", zap.String("local_order_id", localOrderID.String()))
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}
