package handlers

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/checkout/internal/models"
	"github.com/example/checkout/internal/services"
)

// PayPalHandler manages PayPal order creation, capture and webhooks.
type PayPalHandler struct {
	paypal    *services.PayPalService
	sessions  *services.CheckoutService
	reconcile *services.ReconcileService
}

func NewPayPalHandler(paypal *services.PayPalService, sessions *services.CheckoutService, reconcile *services.ReconcileService) *PayPalHandler {
	return &PayPalHandler{
		paypal:    paypal,
		sessions:  sessions,
		reconcile: reconcile,
	}
}

type paypalCreateRequest struct {
	Amount        string                 `json:"amount"`
	Currency      string                 `json:"currency"`
	OfferID       string                 `json:"offer_id"`
	LanderID      string                 `json:"lander_id"`
	CustomerEmail string                 `json:"customer_email"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// CreateOrder creates a PayPal order and records the pending checkout session
// under the synthesized provider session id.
func (h *PayPalHandler) CreateOrder(c *fiber.Ctx) error {
	if !h.paypal.Enabled() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "paypal is not configured")
	}

	var req paypalCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Amount) == "" || strings.TrimSpace(req.Currency) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "amount and currency are required")
	}
	if _, err := services.AmountMinorUnits(req.Amount); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid amount")
	}

	order, err := h.paypal.CreateOrder(c.Context(), services.PayPalAmount{
		CurrencyCode: strings.ToUpper(req.Currency),
		Value:        req.Amount,
	}, req.OfferID)
	if err != nil {
		log.Printf("[PayPal] order creation failed: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, "paypal order creation failed")
	}

	if _, err := h.sessions.CreateSession(c.Context(), services.CreateSessionInput{
		StripeSessionID: services.SyntheticSessionID(order.ID),
		OfferID:         req.OfferID,
		LanderID:        req.LanderID,
		CustomerEmail:   req.CustomerEmail,
		Metadata:        req.Metadata,
		Source:          models.SourcePayPal,
	}); err != nil {
		log.Printf("[PayPal] session persist failed for order %s: %v", order.ID, err)
	}

	var approveURL string
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":    order.ID,
		"status":      order.Status,
		"approve_url": approveURL,
	})
}

// CaptureOrder captures an approved PayPal order and reconciles the result
// into an order row keyed by the synthetic payment-intent id.
func (h *PayPalHandler) CaptureOrder(c *fiber.Ctx) error {
	if !h.paypal.Enabled() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "paypal is not configured")
	}

	orderID := c.Params("id")
	if orderID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "order id is required")
	}

	result, err := h.paypal.CaptureOrder(c.Context(), orderID)
	if err != nil {
		log.Printf("[PayPal] capture failed for order %s: %v", orderID, err)
		return fiber.NewError(fiber.StatusBadGateway, "paypal capture failed")
	}

	capture := result.FirstCapture()
	if capture == nil || !strings.EqualFold(result.Status, "COMPLETED") {
		h.reconcile.RecordFailure(c.Context(), services.FinalizePaymentInput{
			SessionID: services.SyntheticSessionID(orderID),
			EventType: "paypal.capture",
		}, "capture not completed: "+result.Status)
		return fiber.NewError(fiber.StatusPaymentRequired, "capture not completed")
	}

	input, err := h.captureToFinalizeInput(orderID, "paypal.capture", result, capture)
	if err != nil {
		log.Printf("[PayPal] capture parse failed for order %s: %v", orderID, err)
		return fiber.NewError(fiber.StatusBadGateway, "invalid capture amount")
	}

	if err := h.reconcile.FinalizePayment(c.Context(), input); err != nil {
		log.Printf("[PayPal] finalize failed for order %s: %v", orderID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "finalize failed")
	}

	return c.JSON(fiber.Map{
		"order_id":          orderID,
		"capture_id":        capture.ID,
		"payment_intent_id": input.PaymentIntentID,
		"status":            result.Status,
	})
}

func (h *PayPalHandler) captureToFinalizeInput(orderID, eventType string, result *services.PayPalCaptureResult, capture *services.PayPalCapture) (services.FinalizePaymentInput, error) {
	amount, err := services.AmountMinorUnits(capture.Amount.Value)
	if err != nil {
		return services.FinalizePaymentInput{}, err
	}

	offerID := ""
	for _, unit := range result.PurchaseUnits {
		if unit.CustomID != "" {
			offerID = unit.CustomID
			break
		}
	}

	return services.FinalizePaymentInput{
		SessionID:       services.SyntheticSessionID(orderID),
		PaymentIntentID: services.SyntheticPaymentIntentID(capture.ID),
		ChargeID:        capture.ID,
		EventType:       eventType,
		AmountTotal:     amount,
		Currency:        strings.ToUpper(capture.Amount.CurrencyCode),
		OfferID:         offerID,
		CustomerEmail:   result.Payer.EmailAddress,
		CustomerName:    result.PayerName(),
		PaymentStatus:   strings.ToLower(capture.Status),
		PaymentMethod:   "paypal",
		Source:          models.SourcePayPal,
		Metadata: map[string]interface{}{
			"paypal_order_id":   orderID,
			"paypal_capture_id": capture.ID,
		},
	}, nil
}

type paypalWebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type paypalCaptureResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
	CustomID          string `json:"custom_id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// Webhook processes PayPal webhook deliveries after verifying the
// transmission signature with PayPal.
func (h *PayPalHandler) Webhook(c *fiber.Ctx) error {
	if !h.paypal.Enabled() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "paypal is not configured")
	}

	body := c.Body()
	verified, err := h.paypal.VerifyWebhookSignature(c.Context(), services.WebhookHeaders{
		TransmissionID:   c.Get("Paypal-Transmission-Id"),
		TransmissionTime: c.Get("Paypal-Transmission-Time"),
		TransmissionSig:  c.Get("Paypal-Transmission-Sig"),
		CertURL:          c.Get("Paypal-Cert-Url"),
		AuthAlgo:         c.Get("Paypal-Auth-Algo"),
	}, body)
	if err != nil {
		log.Printf("[PayPal] webhook verification error: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "verification failed")
	}
	if !verified {
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	}

	var event paypalWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("[PayPal] malformed webhook payload: %v", err)
		return c.JSON(fiber.Map{"received": true})
	}

	if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		return c.JSON(fiber.Map{"received": true})
	}

	var resource paypalCaptureResource
	if err := json.Unmarshal(event.Resource, &resource); err != nil || resource.ID == "" {
		log.Printf("[PayPal] malformed capture resource in event %s", event.ID)
		return c.JSON(fiber.Map{"received": true})
	}

	amount, err := services.AmountMinorUnits(resource.Amount.Value)
	if err != nil {
		log.Printf("[PayPal] invalid capture amount %q in event %s: %v", resource.Amount.Value, event.ID, err)
		return c.JSON(fiber.Map{"received": true})
	}

	orderID := resource.SupplementaryData.RelatedIDs.OrderID

	input := services.FinalizePaymentInput{
		SessionID:       services.SyntheticSessionID(orderID),
		PaymentIntentID: services.SyntheticPaymentIntentID(resource.ID),
		ChargeID:        resource.ID,
		EventType:       event.EventType,
		AmountTotal:     amount,
		Currency:        strings.ToUpper(resource.Amount.CurrencyCode),
		OfferID:         resource.CustomID,
		PaymentStatus:   strings.ToLower(resource.Status),
		PaymentMethod:   "paypal",
		Source:          models.SourcePayPal,
		Metadata: map[string]interface{}{
			"paypal_order_id":   orderID,
			"paypal_capture_id": resource.ID,
		},
	}

	if err := h.reconcile.FinalizePayment(c.Context(), input); err != nil {
		log.Printf("[PayPal] finalize failed for capture %s: %v", resource.ID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "finalize failed")
	}

	return c.JSON(fiber.Map{"received": true})
}
