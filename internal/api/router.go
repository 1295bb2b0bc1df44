package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/api/handlers"
	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/internal/service"
)

// Services groups the engines the HTTP layer drives
type Services struct {
	Orders   *service.OrderSyncEngine
	Catalog  *service.CatalogSyncEngine
	Webhooks *service.WebhookIngestor
	Configs  *service.ConfigService
}

// NewRouter creates and configures the Gin router. gatherer may be nil, in
// which case /metrics is not mounted.
func NewRouter(cfg *config.Config, repos *repository.Repositories, svc Services, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	// Supplier callbacks
	router.GET("/webhook/test", handlers.HandleWebhookTest())
	router.POST("/webhook/:configId", handlers.HandleWebhook(svc.Webhooks, logger))

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Host lifecycle hooks
		hookRoutes := v1.Group("/hooks")
		{
			hookRoutes.POST("/local-orders/:id/confirmed", handlers.HandleOrderConfirmed(svc.Orders, logger))
		}

		// Manual actions (internal network only)
		adminRoutes := v1.Group("/admin")
		{
			adminRoutes.GET("/orders", handlers.HandleListOrders(repos, logger))
			adminRoutes.GET("/orders/:id", handlers.HandleGetOrder(repos, logger))
			adminRoutes.POST("/orders/:id/submit", handlers.HandleSubmitOrder(svc.Orders, logger))
			adminRoutes.POST("/orders/:id/refresh", handlers.HandleRefreshOrder(svc.Orders, logger))
			adminRoutes.POST("/orders/:id/logistics", handlers.HandleRefreshLogistics(svc.Orders, logger))
			adminRoutes.POST("/orders/:id/retry", handlers.HandleRetryOrder(svc.Orders, logger))
			adminRoutes.POST("/local-orders/:id/submit", handlers.HandleSubmitLocalOrder(svc.Orders, logger))

			adminRoutes.POST("/products/:pid/sync", handlers.HandleSyncProduct(svc.Catalog, logger))
			adminRoutes.POST("/configs/:id/products/import", handlers.HandleImportProducts(svc.Catalog, logger))
			adminRoutes.POST("/configs/:id/local-products", handlers.HandleCreateLocalProducts(svc.Catalog, logger))
			adminRoutes.POST("/supplier-products/:id/local-product", handlers.HandleCreateLocalProduct(svc.Catalog, logger))
			adminRoutes.PUT("/supplier-products/:id/local-product", handlers.HandleLinkLocalProduct(svc.Catalog, logger))
			adminRoutes.POST("/configs/:id/test-connection", handlers.HandleTestConnection(svc.Configs, logger))
			adminRoutes.PUT("/configs/:id/credential", handlers.HandleUpdateCredential(svc.Configs, logger))

			adminRoutes.POST("/webhooks/:id/process", handlers.HandleProcessWebhook(svc.Webhooks, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", c.FullPath()),
			zap.String("raw_path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
