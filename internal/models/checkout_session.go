package models

import "gorm.io/datatypes"

// Checkout session lifecycle states. Transitions only move forward:
// pending is the only non-terminal state.
const (
	SessionStatusPending   = "pending"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
	SessionStatusAbandoned = "abandoned"
)

// Payment sources.
const (
	SourceStripe = "stripe"
	SourcePayPal = "paypal"
)

// CheckoutSession mirrors a provider-side checkout attempt before payment
// confirmation. Rows are append-only; a sweep may mark stale pending rows
// as abandoned but nothing is ever deleted.
type CheckoutSession struct {
	BaseModel
	StripeSessionID       string            `gorm:"uniqueIndex;not null" json:"stripe_session_id"`
	StripePaymentIntentID *string           `gorm:"index" json:"stripe_payment_intent_id"`
	OfferID               string            `json:"offer_id"`
	LanderID              string            `json:"lander_id"`
	CustomerEmail         *string           `json:"customer_email"`
	Metadata              datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	Status                string            `gorm:"default:pending;check:status IN ('pending','completed','failed','abandoned')" json:"status"`
	Source                string            `gorm:"default:stripe;check:source IN ('stripe','paypal')" json:"source"`
}
