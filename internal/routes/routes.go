package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	"github.com/example/checkout/internal/config"
	"github.com/example/checkout/internal/handlers"
	"github.com/example/checkout/internal/middleware"
	"github.com/example/checkout/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) *services.Registry {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	ghlService := services.NewGHLService(cfg.GHLBaseURL, cfg.GHLAPIKey, cfg.GHLLocationID)
	paypalService := services.NewPayPalService(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.PayPalWebhookID)

	checkoutService := services.NewCheckoutService(db)
	orderService := services.NewOrderService(db)
	webhookLogService := services.NewWebhookLogService(db)
	reconcileService := services.NewReconcileService(orderService, checkoutService, webhookLogService, ghlService, telegramService)

	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	paypalHandler := handlers.NewPayPalHandler(paypalService, checkoutService, reconcileService)
	stripeWebhookHandler := handlers.NewStripeWebhookHandler(cfg.StripeWebhookSecret, reconcileService, checkoutService, orderService)
	opsHandler := handlers.NewOpsHandler(cfg, orderService, webhookLogService)

	api := app.Group("/api")

	// Public checkout routes, best-effort in-memory rate limit per instance.
	// Applied per route so provider webhooks stay unthrottled.
	rateLimit := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
	})
	api.Post("/checkout/sessions", rateLimit, checkoutHandler.CreateSession)
	api.Post("/paypal/orders", rateLimit, paypalHandler.CreateOrder)
	api.Post("/paypal/orders/:id/capture", rateLimit, paypalHandler.CaptureOrder)

	// Provider webhooks carry their own signatures, no rate limit.
	webhooks := api.Group("/webhooks")
	webhooks.Post("/stripe", stripeWebhookHandler.Handle)
	webhooks.Post("/paypal", paypalHandler.Webhook)

	// Ops surface.
	api.Post("/ops/token", opsHandler.Token)
	ops := api.Group("/ops", middleware.OpsAuthMiddleware(cfg))
	ops.Get("/orders", opsHandler.ListOrders)
	ops.Get("/orders/:id", opsHandler.GetOrder)
	ops.Get("/webhook-logs", opsHandler.ListWebhookLogs)
	ops.Get("/webhook-logs/stats", opsHandler.WebhookLogStats)

	return &services.Registry{
		Sessions:   checkoutService,
		Orders:     orderService,
		WebhookLog: webhookLogService,
		Telegram:   telegramService,
	}
}
