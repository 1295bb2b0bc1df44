package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/service"
)

const maxWebhookBodySize = 1 << 20

// HandleWebhook handles POST /webhook/:configId. It always answers 200 so
// the supplier never retries because of a local processing problem.
func HandleWebhook(webhooks *service.WebhookIngestor, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		configID, err := uuid.Parse(c.Param("configId"))
		if err != nil {
			c.JSON(http.StatusOK, service.Ack{Status: service.AckError, Message: "Webhook not enabled"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
		if err != nil {
			logger.Warn("Failed to read webhook body", zap.String("config_id", configID.String()), zap.Error(err))
			c.JSON(http.StatusOK, service.Ack{Status: service.AckError, Message: "Failed to read body"})
			return
		}

		ack := webhooks.Ingest(c.Request.Context(), configID, body, c.Request.Header)
		c.JSON(http.StatusOK, ack)
	}
}

// HandleWebhookTest handles GET /webhook/test
func HandleWebhookTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "Supplier webhook endpoint is working")
	}
}
