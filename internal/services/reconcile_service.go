package services

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"github.com/example/checkout/internal/models"
)

// ReconcileService drives the payment-confirmation flow shared by the Stripe
// webhook handler and the PayPal capture path: materialize the order, close
// the session, keep the webhook ledger, then push to GHL.
type ReconcileService struct {
	orders   *OrderService
	sessions *CheckoutService
	logs     *WebhookLogService
	ghl      *GHLService
	telegram *TelegramService
}

func NewReconcileService(orders *OrderService, sessions *CheckoutService, logs *WebhookLogService, ghl *GHLService, telegram *TelegramService) *ReconcileService {
	return &ReconcileService{
		orders:   orders,
		sessions: sessions,
		logs:     logs,
		ghl:      ghl,
		telegram: telegram,
	}
}

// FinalizePaymentInput carries the fields extracted from a provider payment
// signal. SessionID and PaymentIntentID are the provider-native (or
// PayPal-synthesized) identifiers.
type FinalizePaymentInput struct {
	SessionID       string
	PaymentIntentID string
	ChargeID        string
	EventType       string
	AmountTotal     int64
	Currency        string
	OfferID         string
	LanderID        string
	CustomerEmail   string
	CustomerName    string
	PaymentStatus   string
	PaymentMethod   string
	Source          string
	Metadata        map[string]interface{}
}

// FinalizePayment records the payment outcome. The order upsert is the only
// step whose failure propagates; CRM sync and notifications are side effects
// that must never cause the provider acknowledgment to fail.
func (s *ReconcileService) FinalizePayment(ctx context.Context, in FinalizePaymentInput) error {
	logBase := RecordWebhookLogInput{
		PaymentIntentID: in.PaymentIntentID,
		StripeSessionID: in.SessionID,
		EventType:       in.EventType,
		OfferID:         in.OfferID,
		LanderID:        in.LanderID,
	}

	// First sighting. A pending write does not count as a delivery attempt.
	logBase.Status = models.WebhookStatusPending
	s.writeLedger(ctx, logBase)

	order := &models.Order{
		StripeSessionID: in.SessionID,
		StripeChargeID:  in.ChargeID,
		AmountTotal:     in.AmountTotal,
		Currency:        in.Currency,
		OfferID:         in.OfferID,
		LanderID:        in.LanderID,
		CustomerEmail:   in.CustomerEmail,
		CustomerName:    in.CustomerName,
		Metadata:        in.Metadata,
		PaymentStatus:   in.PaymentStatus,
		PaymentMethod:   in.PaymentMethod,
		Source:          in.Source,
	}
	if in.PaymentIntentID != "" {
		intentID := in.PaymentIntentID
		order.StripePaymentIntentID = &intentID
	}

	session, err := s.sessions.UpdateSessionStatus(ctx, in.SessionID, models.SessionStatusCompleted, order.StripePaymentIntentID)
	switch {
	case err == nil && session != nil:
		order.CheckoutSessionID = &session.ID
		backfillFromSession(order, session)
	case errors.Is(err, ErrSessionClosed):
		// Duplicate delivery; the session already closed. Keep going so the
		// order merge and ledger still happen.
		order.CheckoutSessionID = &session.ID
		backfillFromSession(order, session)
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Printf("[Reconcile] no checkout session for %s, creating order without back-reference", in.SessionID)
	case err != nil:
		log.Printf("[Reconcile] session update failed for %s: %v", in.SessionID, err)
	}

	if err := s.orders.UpsertOrder(ctx, order); err != nil {
		logBase.Status = models.WebhookStatusError
		logBase.Message = "order upsert failed: " + err.Error()
		s.writeLedger(ctx, logBase)
		return err
	}

	if s.ghl != nil && s.ghl.Enabled() {
		syncErr := s.ghl.SyncOrderWithRetry(ctx, order, SyncContext{
			OfferID:         in.OfferID,
			PaymentIntentID: in.PaymentIntentID,
		})
		if syncErr != nil {
			log.Printf("[Reconcile] GHL sync failed for intent %s: %v", in.PaymentIntentID, syncErr)
			logBase.Status = models.WebhookStatusError
			logBase.Message = "ghl sync failed: " + syncErr.Error()
			s.writeLedger(ctx, logBase)
			return nil
		}
	}

	logBase.Status = models.WebhookStatusSuccess
	logBase.Message = ""
	s.writeLedger(ctx, logBase)

	if s.telegram != nil {
		notification := PaymentNotification{
			OfferID:         in.OfferID,
			PaymentIntentID: in.PaymentIntentID,
			CustomerEmail:   in.CustomerEmail,
			AmountTotal:     in.AmountTotal,
			Currency:        in.Currency,
			Source:          in.Source,
		}
		go func() {
			if err := s.telegram.NotifyPaymentSuccess(notification); err != nil {
				log.Printf("[Reconcile] Telegram payment notification failed: %v", err)
			}
		}()
	}

	return nil
}

// RecordFailure marks a failed payment attempt: the session moves to failed
// and the ledger records the error.
func (s *ReconcileService) RecordFailure(ctx context.Context, in FinalizePaymentInput, message string) {
	if in.SessionID != "" {
		if _, err := s.sessions.UpdateSessionStatus(ctx, in.SessionID, models.SessionStatusFailed, nil); err != nil &&
			!errors.Is(err, ErrSessionClosed) && !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Reconcile] session fail-update failed for %s: %v", in.SessionID, err)
		}
	}
	if in.PaymentIntentID == "" {
		log.Printf("[Reconcile] payment failure without intent id (session %s): %s", in.SessionID, message)
		return
	}

	s.writeLedger(ctx, RecordWebhookLogInput{
		PaymentIntentID: in.PaymentIntentID,
		StripeSessionID: in.SessionID,
		EventType:       in.EventType,
		OfferID:         in.OfferID,
		LanderID:        in.LanderID,
		Status:          models.WebhookStatusError,
		Message:         message,
	})
}

// writeLedger records a ledger entry, skipping when no payment-intent id is
// available to key it. Ledger failures are logged, never propagated.
func (s *ReconcileService) writeLedger(ctx context.Context, input RecordWebhookLogInput) {
	if input.PaymentIntentID == "" {
		return
	}
	if _, err := s.logs.RecordWebhookLog(ctx, input); err != nil {
		log.Printf("[Reconcile] webhook log write failed for intent %s: %v", input.PaymentIntentID, err)
	}
}

func backfillFromSession(order *models.Order, session *models.CheckoutSession) {
	if session == nil {
		return
	}
	if order.OfferID == "" {
		order.OfferID = session.OfferID
	}
	if order.LanderID == "" {
		order.LanderID = session.LanderID
	}
	if order.CustomerEmail == "" && session.CustomerEmail != nil {
		order.CustomerEmail = *session.CustomerEmail
	}
}
