package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/middleware"
	"github.com/kevin07696/billing-service/internal/services/idempotency"
	"github.com/kevin07696/billing-service/pkg/observability"
	"go.uber.org/zap"
)

// RouterConfig bundles the handlers and cross-cutting middleware for the
// public API surface.
type RouterConfig struct {
	Customers      *CustomerHandler
	PaymentMethods *PaymentMethodHandler
	Subscriptions  *SubscriptionHandler
	Charges        *ChargeHandler
	Invoices       *InvoiceHandler
	Webhooks       *WebhookHandler
	State          *StateHandler
	Health         *observability.HealthChecker

	Idempotency *idempotency.Service
	RateLimiter *middleware.RateLimiter
	ErrorMapper *middleware.ErrorMapper
	Logger      *zap.Logger
}

// NewRouter builds the gin engine. Middleware order is load-bearing:
// webhooks take the raw body with no JSON inspection, every API route
// goes through tenant resolution and the PCI gate, and only money
// movement carries the replay cache.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestMetrics())
	r.Use(cfg.ErrorMapper.Middleware())
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Handler())
	}

	// Webhook ingestion: signature covers the raw bytes, so the tenant
	// comes from the path and no body-rewriting middleware runs here.
	r.POST("/webhooks/:app_id", cfg.Webhooks.Ingest)
	r.POST("/webhooks/:app_id/events/:event_id/replay", cfg.Webhooks.Replay)

	// Health probes on the API port as well as the metrics port
	r.GET("/health/live", gin.WrapF(cfg.Health.LiveHandler()))
	r.GET("/health/ready", gin.WrapF(cfg.Health.ReadyHandler()))

	tenant := middleware.TenantResolver(cfg.Logger)
	pci := middleware.PCIReject(cfg.Logger)
	replay := middleware.Idempotency(cfg.Idempotency, cfg.ErrorMapper, cfg.Logger)

	// The PCI gate sits on the whole group so no write route can be
	// registered without it; bodiless requests pass straight through.
	api := r.Group("/", tenant, pci)
	{
		api.GET("/state", cfg.State.Snapshot)

		api.POST("/customers", cfg.Customers.Create)
		api.GET("/customers", cfg.Customers.GetByExternalID)
		api.GET("/customers/:id", cfg.Customers.Get)
		api.PUT("/customers/:id", cfg.Customers.Update)
		api.PUT("/customers/:id/default-payment-method", cfg.Customers.SetDefaultPaymentMethod)

		api.GET("/payment-methods", cfg.PaymentMethods.List)
		api.POST("/payment-methods", cfg.PaymentMethods.Add)
		api.DELETE("/payment-methods/:token", cfg.PaymentMethods.Delete)
		api.PUT("/payment-methods/:token/default", cfg.PaymentMethods.SetDefault)

		api.GET("/subscriptions", cfg.Subscriptions.List)
		api.POST("/subscriptions", cfg.Subscriptions.Create)
		api.GET("/subscriptions/:id", cfg.Subscriptions.Get)
		api.PUT("/subscriptions/:id", cfg.Subscriptions.Update)
		api.DELETE("/subscriptions/:id", cfg.Subscriptions.Cancel)
		api.POST("/subscriptions/change-cycle", cfg.Subscriptions.ChangeCycle)

		api.POST("/proration/calculate", cfg.Subscriptions.CalculateProration)
		api.POST("/subscriptions/:id/proration/apply", cfg.Subscriptions.ApplyProration)
		api.POST("/subscriptions/:id/proration/cancellation-refund", cfg.Subscriptions.CancellationRefundPreview)

		api.POST("/charges/one-time", replay, cfg.Charges.CreateOneTime)
		api.GET("/charges", cfg.Charges.List)
		api.GET("/charges/:id", cfg.Charges.Get)

		api.POST("/refunds", replay, cfg.Charges.CreateRefund)
		api.GET("/refunds/:id", cfg.Charges.GetRefund)

		api.POST("/invoices/quote", cfg.Invoices.Quote)
		api.POST("/invoices/:id/finalize", cfg.Invoices.Finalize)
	}

	return r
}
