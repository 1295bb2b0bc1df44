package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/service"
)

// ImportProductsRequest represents the catalog import payload
type ImportProductsRequest struct {
	Page                int    `json:"page" binding:"omitempty,min=1"`
	PageSize            int    `json:"page_size" binding:"omitempty,min=1,max=200"`
	CategoryID          string `json:"category_id"`
	CreateLocalProducts bool   `json:"create_local_products"`
}

// LinkLocalProductRequest maps a supplier product record onto a local product
type LinkLocalProductRequest struct {
	LocalProductID string `json:"local_product_id" binding:"required,uuid"`
}

// UpdateCredentialRequest replaces the credential of a supplier account
type UpdateCredentialRequest struct {
	Email  string `json:"email" binding:"required,email"`
	APIKey string `json:"api_key" binding:"required"`
}

// HandleSyncProduct handles POST /v1/admin/products/:pid/sync
func HandleSyncProduct(catalog *service.CatalogSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Sync product"

		result, err := catalog.SyncOne(c.Request.Context(), c.Param("pid"))
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		message := fmt.Sprintf("Updated %d record(s)", result.Updated)
		if result.StockWarnings > 0 {
			message += fmt.Sprintf(", stock unavailable for %d", result.StockWarnings)
		}
		c.JSON(http.StatusOK, gin.H{
			"type":    "success",
			"title":   title,
			"message": message,
			"result":  result,
		})
	}
}

// HandleImportProducts handles POST /v1/admin/configs/:id/products/import
func HandleImportProducts(catalog *service.CatalogSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Import products"

		configID, ok := parseID(c, "id", "config ID")
		if !ok {
			return
		}

		var req ImportProductsRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":   "validation failed",
					"details": err.Error(),
				})
				return
			}
		}

		result, err := catalog.ImportProducts(c.Request.Context(), configID, service.ImportParams{
			Page:                req.Page,
			PageSize:            req.PageSize,
			CategoryID:          req.CategoryID,
			CreateLocalProducts: req.CreateLocalProducts,
		})
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		message := fmt.Sprintf("Imported %d product(s), skipped %d", result.Imported, result.Skipped)
		if result.LocalCreated > 0 {
			message += fmt.Sprintf(", created %d local product(s)", result.LocalCreated)
		}
		c.JSON(http.StatusOK, gin.H{
			"type":    "success",
			"title":   title,
			"message": message,
			"result":  result,
		})
	}
}

// HandleCreateLocalProduct handles POST /v1/admin/supplier-products/:id/local-product
func HandleCreateLocalProduct(catalog *service.CatalogSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Create local product"

		recordID, ok := parseID(c, "id", "supplier product ID")
		if !ok {
			return
		}

		local, created, err := catalog.CreateLocalProduct(c.Request.Context(), recordID)
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		message := fmt.Sprintf("Local product %s updated", local.Name)
		if created {
			message = fmt.Sprintf("Local product %s created", local.Name)
		}
		c.JSON(http.StatusOK, gin.H{
			"type":             "success",
			"title":            title,
			"message":          message,
			"local_product_id": local.ID.String(),
			"created":          created,
		})
	}
}

// HandleLinkLocalProduct handles PUT /v1/admin/supplier-products/:id/local-product
func HandleLinkLocalProduct(catalog *service.CatalogSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Link local product"

		recordID, ok := parseID(c, "id", "supplier product ID")
		if !ok {
			return
		}

		var req LinkLocalProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		record, err := catalog.LinkLocalProduct(c.Request.Context(), recordID, uuid.MustParse(req.LocalProductID))
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"type":             "success",
			"title":            title,
			"message":          fmt.Sprintf("Supplier product %s linked", record.SupplierProductID),
			"local_product_id": req.LocalProductID,
		})
	}
}

// HandleCreateLocalProducts handles POST /v1/admin/configs/:id/local-products
func HandleCreateLocalProducts(catalog *service.CatalogSyncEngine, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Create local products"

		configID, ok := parseID(c, "id", "config ID")
		if !ok {
			return
		}

		result, err := catalog.CreateLocalProducts(c.Request.Context(), configID)
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"type":    "success",
			"title":   title,
			"message": fmt.Sprintf("Created %d local product(s), %d failed", result.Processed-result.Failed, result.Failed),
			"result":  result,
		})
	}
}

// HandleUpdateCredential handles PUT /v1/admin/configs/:id/credential
func HandleUpdateCredential(configs *service.ConfigService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Update credential"

		configID, ok := parseID(c, "id", "config ID")
		if !ok {
			return
		}

		var req UpdateCredentialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		_, err := configs.UpdateCredential(c.Request.Context(), configID, domain.Credential{Email: req.Email, Secret: req.APIKey})
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		c.JSON(http.StatusOK, ActionResponse{Notification: service.Success(title, "Credential updated, connection not tested")})
	}
}

// HandleTestConnection handles POST /v1/admin/configs/:id/test-connection
func HandleTestConnection(configs *service.ConfigService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Connection test"

		configID, ok := parseID(c, "id", "config ID")
		if !ok {
			return
		}

		cfg, err := configs.TestConnection(c.Request.Context(), configID)
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		c.JSON(http.StatusOK, ActionResponse{Notification: service.Success(title, cfg.ConnectionMessage)})
	}
}

// HandleProcessWebhook handles POST /v1/admin/webhooks/:id/process
func HandleProcessWebhook(webhooks *service.WebhookIngestor, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const title = "Process webhook"

		recordID, ok := parseID(c, "id", "webhook ID")
		if !ok {
			return
		}

		record, err := webhooks.Process(c.Request.Context(), recordID)
		if err != nil {
			respondFailure(c, logger, title, err)
			return
		}

		message := "Webhook processed"
		if record.Error != "" {
			message = "Webhook dropped: " + record.Error
		}
		c.JSON(http.StatusOK, gin.H{
			"type":      "success",
			"title":     title,
			"message":   message,
			"processed": record.Processed,
		})
	}
}
