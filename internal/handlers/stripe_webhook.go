package handlers

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/example/checkout/internal/models"
	"github.com/example/checkout/internal/services"
)

// StripeWebhookHandler processes signature-verified Stripe events.
type StripeWebhookHandler struct {
	webhookSecret string
	reconcile     *services.ReconcileService
	sessions      *services.CheckoutService
	orders        *services.OrderService
}

func NewStripeWebhookHandler(webhookSecret string, reconcile *services.ReconcileService, sessions *services.CheckoutService, orders *services.OrderService) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		reconcile:     reconcile,
		sessions:      sessions,
		orders:        orders,
	}
}

// Handle verifies and dispatches a Stripe webhook delivery. Side-effect
// failures are logged but never fail the acknowledgment; a non-2xx here would
// trigger a redelivery storm.
func (h *StripeWebhookHandler) Handle(c *fiber.Ctx) error {
	event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Printf("[Stripe] webhook signature verification failed: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		return h.handleSessionCompleted(c, event)
	case "payment_intent.payment_failed":
		return h.handlePaymentFailed(c, event)
	case "charge.dispute.created":
		return h.handleDisputeCreated(c, event)
	default:
		return c.JSON(fiber.Map{"received": true})
	}
}

func (h *StripeWebhookHandler) handleSessionCompleted(c *fiber.Ctx, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Printf("[Stripe] malformed checkout.session.completed payload: %v", err)
		return c.JSON(fiber.Map{"received": true})
	}

	input := services.FinalizePaymentInput{
		SessionID:     session.ID,
		EventType:     string(event.Type),
		AmountTotal:   session.AmountTotal,
		Currency:      strings.ToUpper(string(session.Currency)),
		PaymentStatus: string(session.PaymentStatus),
		PaymentMethod: "card",
		Source:        models.SourceStripe,
		Metadata:      stringMapToMetadata(session.Metadata),
	}
	if session.PaymentIntent != nil {
		input.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.CustomerDetails != nil {
		input.CustomerEmail = session.CustomerDetails.Email
		input.CustomerName = session.CustomerDetails.Name
	}
	if session.Metadata != nil {
		input.OfferID = session.Metadata["offer_id"]
		input.LanderID = session.Metadata["lander_id"]
	}

	if input.PaymentIntentID == "" {
		// The session id still resolves the order through the lookup chain,
		// but the ledger has no key for this delivery.
		log.Printf("[Stripe] session %s completed without payment intent", session.ID)
	}

	if err := h.reconcile.FinalizePayment(c.Context(), input); err != nil {
		log.Printf("[Stripe] finalize failed for session %s: %v", session.ID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "finalize failed")
	}

	return c.JSON(fiber.Map{"received": true})
}

func (h *StripeWebhookHandler) handlePaymentFailed(c *fiber.Ctx, event stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		log.Printf("[Stripe] malformed payment_intent.payment_failed payload: %v", err)
		return c.JSON(fiber.Map{"received": true})
	}

	message := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		message = intent.LastPaymentError.Msg
	}

	sessionID, err := h.sessions.FailByPaymentIntent(c.Context(), intent.ID)
	if err != nil {
		log.Printf("[Stripe] session fail-lookup error for intent %s: %v", intent.ID, err)
	}

	h.reconcile.RecordFailure(c.Context(), services.FinalizePaymentInput{
		SessionID:       sessionID,
		PaymentIntentID: intent.ID,
		EventType:       string(event.Type),
		OfferID:         intent.Metadata["offer_id"],
		LanderID:        intent.Metadata["lander_id"],
	}, message)

	return c.JSON(fiber.Map{"received": true})
}

func (h *StripeWebhookHandler) handleDisputeCreated(c *fiber.Ctx, event stripe.Event) error {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		log.Printf("[Stripe] malformed charge.dispute.created payload: %v", err)
		return c.JSON(fiber.Map{"received": true})
	}

	var intentID string
	if dispute.PaymentIntent != nil {
		intentID = dispute.PaymentIntent.ID
	}
	if intentID == "" {
		chargeID := ""
		if dispute.Charge != nil {
			chargeID = dispute.Charge.ID
		}
		// Best effort: a malformed sub-field must not block the handler.
		log.Printf("[Stripe] dispute %s has no payment intent (charge %s), skipping order annotation", dispute.ID, chargeID)
		return c.JSON(fiber.Map{"received": true})
	}

	updated, err := h.orders.UpdateOrderMetadata(c.Context(), services.OrderLookupKey{
		StripePaymentIntentID: &intentID,
	}, map[string]interface{}{
		"dispute_id":  dispute.ID,
		"disputed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("[Stripe] dispute annotation failed for intent %s: %v", intentID, err)
	} else if !updated {
		log.Printf("[Stripe] dispute %s references unknown order (intent %s)", dispute.ID, intentID)
	}

	return c.JSON(fiber.Map{"received": true})
}

func stringMapToMetadata(m map[string]string) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
