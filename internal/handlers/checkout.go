package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/checkout/internal/models"
	"github.com/example/checkout/internal/services"
)

// CheckoutHandler records checkout attempts before payment confirmation.
type CheckoutHandler struct {
	sessions *services.CheckoutService
}

func NewCheckoutHandler(sessions *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{sessions: sessions}
}

type createSessionRequest struct {
	StripeSessionID string                 `json:"stripe_session_id"`
	OfferID         string                 `json:"offer_id"`
	LanderID        string                 `json:"lander_id"`
	CustomerEmail   string                 `json:"customer_email"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// CreateSession persists a pending checkout session for a Stripe checkout the
// frontend just started.
func (h *CheckoutHandler) CreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.StripeSessionID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "stripe_session_id is required")
	}

	session, err := h.sessions.CreateSession(c.Context(), services.CreateSessionInput{
		StripeSessionID: req.StripeSessionID,
		OfferID:         req.OfferID,
		LanderID:        req.LanderID,
		CustomerEmail:   req.CustomerEmail,
		Metadata:        req.Metadata,
		Source:          models.SourceStripe,
	})
	if err != nil {
		return err
	}
	if session == nil {
		// No database configured: acknowledge without persistence.
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"persisted": false})
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}
