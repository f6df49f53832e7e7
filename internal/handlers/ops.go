package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/checkout/internal/config"
	"github.com/example/checkout/internal/services"
	"github.com/example/checkout/internal/utils"
)

// OpsHandler exposes the operational surface: token exchange, order lookup
// and the webhook ledger counters.
type OpsHandler struct {
	cfg    *config.Config
	orders *services.OrderService
	logs   *services.WebhookLogService
}

func NewOpsHandler(cfg *config.Config, orders *services.OrderService, logs *services.WebhookLogService) *OpsHandler {
	return &OpsHandler{cfg: cfg, orders: orders, logs: logs}
}

type tokenRequest struct {
	Key string `json:"key"`
}

// Token exchanges the operator key for a short-lived JWT.
func (h *OpsHandler) Token(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if h.cfg.OpsKeyHash == "" || !utils.CheckKey(h.cfg.OpsKeyHash, req.Key) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid operator key")
	}

	token, err := utils.GenerateOpsToken(h.cfg.JWTSecret, h.cfg.TokenExpires)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_in": int(h.cfg.TokenExpires.Seconds()),
	})
}

// ListOrders returns orders newest-first with pagination.
func (h *OpsHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	orders, total, err := h.orders.ListOrders(c.Context(), c.Query("source"), c.Query("offer_id"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}

	// Mirror metadata keys so ops tooling written against either naming
	// convention reads the same payload.
	for i := range orders {
		if orders[i].Metadata != nil {
			utils.EnsureMetadataCaseVariants(orders[i].Metadata, nil)
		}
	}

	return c.JSON(fiber.Map{
		"data": orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order by internal id.
func (h *OpsHandler) GetOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	order, err := h.orders.GetOrder(c.Context(), id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if order.Metadata != nil {
		utils.EnsureMetadataCaseVariants(order.Metadata, nil)
	}

	return c.JSON(order)
}

// ListWebhookLogs returns ledger rows, optionally filtered by status.
func (h *OpsHandler) ListWebhookLogs(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	logs, total, err := h.logs.ListLogs(c.Context(), c.Query("status"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": logs,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// WebhookLogStats reports the errored and stale-pending counters used for
// operational alerting. Both are 0 when no database is configured.
func (h *OpsHandler) WebhookLogStats(c *fiber.Ctx) error {
	hours := queryInt(c, "hours", 24)
	minutes := queryInt(c, "minutes", 30)

	errored, err := h.logs.CountErroredSince(c.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		return err
	}

	stalePending, err := h.logs.CountPendingOlderThan(c.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"errored_since_hours":   hours,
		"errored_count":         errored,
		"stale_pending_minutes": minutes,
		"stale_pending_count":   stalePending,
	})
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	if parsed, err := strconv.Atoi(c.Query(key)); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}
