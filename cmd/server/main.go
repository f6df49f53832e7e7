package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/checkout/internal/config"
	"github.com/example/checkout/internal/database"
	"github.com/example/checkout/internal/routes"
	"github.com/example/checkout/internal/services"
	"github.com/example/checkout/internal/utils"
)

func main() {
	// "server hash-key <key>" prints the bcrypt hash for OPS_KEY_HASH and
	// exits, so operators never have to hash the key by hand.
	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		if len(os.Args) != 3 {
			log.Fatal("usage: server hash-key <operator-key>")
		}
		hash, err := utils.HashKey(os.Args[2])
		if err != nil {
			log.Fatalf("failed to hash operator key: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	app := fiber.New(fiber.Config{
		AppName: "Checkout Backend",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	registry := routes.Register(app, db, cfg)

	go sweepAbandonedSessions(registry.Sessions, cfg.SessionAbandonAfter)
	go monitorWebhookLedger(registry.WebhookLog, registry.Telegram, cfg.MonitorInterval, cfg.MonitorErrorWindow)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}

// sweepAbandonedSessions periodically marks stale pending checkout sessions
// as abandoned.
func sweepAbandonedSessions(sessions *services.CheckoutService, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()

	for range ticker.C {
		swept, err := sessions.AbandonStale(context.Background(), maxAge)
		if err != nil {
			log.Printf("[Sweep] abandon pass failed: %v", err)
			continue
		}
		if swept > 0 {
			log.Printf("[Sweep] marked %d stale sessions abandoned", swept)
		}
	}
}

// monitorWebhookLedger polls the ledger counters and alerts the admin chat
// when webhook processing is failing.
func monitorWebhookLedger(logs *services.WebhookLogService, telegram *services.TelegramService, interval, errorWindow time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		errored, err := logs.CountErroredSince(ctx, errorWindow)
		if err != nil {
			log.Printf("[Monitor] errored-count query failed: %v", err)
			continue
		}
		stalePending, err := logs.CountPendingOlderThan(ctx, 30*time.Minute)
		if err != nil {
			log.Printf("[Monitor] stale-pending query failed: %v", err)
			continue
		}

		if errored == 0 && stalePending == 0 {
			continue
		}

		log.Printf("[Monitor] webhook ledger degraded: errored=%d stale_pending=%d", errored, stalePending)
		if err := telegram.NotifyWebhookErrors(errored, stalePending, errorWindow); err != nil {
			log.Printf("[Monitor] Telegram alert failed: %v", err)
		}
	}
}
