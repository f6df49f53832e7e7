package models

import (
	"time"

	"gorm.io/datatypes"
)

// Webhook delivery outcomes.
const (
	WebhookStatusPending = "pending"
	WebhookStatusSuccess = "success"
	WebhookStatusError   = "error"
)

// WebhookLog is the per-payment-intent idempotency ledger for inbound payment
// webhooks. One row per payment intent; providers may redeliver the same event
// many times and every redelivery lands on the same row.
//
// Attempts counts only non-pending writes: a pending write records the first
// sighting without counting as a delivery attempt.
type WebhookLog struct {
	BaseModel
	PaymentIntentID string            `gorm:"uniqueIndex;not null" json:"payment_intent_id"`
	StripeSessionID string            `json:"stripe_session_id"`
	EventType       string            `json:"event_type"`
	OfferID         string            `json:"offer_id"`
	LanderID        string            `json:"lander_id"`
	Status          string            `gorm:"default:pending;check:status IN ('pending','success','error')" json:"status"`
	Attempts        int               `gorm:"default:0" json:"attempts"`
	LastError       *string           `json:"last_error"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	LastAttemptAt   *time.Time        `json:"last_attempt_at"`
	LastSuccessAt   *time.Time        `json:"last_success_at"`
}
