package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Order is the durable record of a purchase, keyed primarily by the provider
// payment-intent id. Metadata is merged on every write, never replaced, so
// async side systems (license issuance, CRM sync) can attach keys after
// creation without clobbering each other.
type Order struct {
	BaseModel
	CheckoutSessionID     *uuid.UUID        `gorm:"type:uuid;constraint:OnDelete:SET NULL" json:"checkout_session_id"`
	CheckoutSession       *CheckoutSession  `json:"checkout_session,omitempty"`
	StripeSessionID       string            `gorm:"index" json:"stripe_session_id"`
	StripePaymentIntentID *string           `gorm:"uniqueIndex" json:"stripe_payment_intent_id"`
	StripeChargeID        string            `json:"stripe_charge_id"`
	AmountTotal           int64             `json:"amount_total"`
	Currency              string            `json:"currency"`
	OfferID               string            `json:"offer_id"`
	LanderID              string            `json:"lander_id"`
	CustomerEmail         string            `json:"customer_email"`
	CustomerName          string            `json:"customer_name"`
	Metadata              datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	PaymentStatus         string            `json:"payment_status"`
	PaymentMethod         string            `json:"payment_method"`
	Source                string            `gorm:"default:stripe;check:source IN ('stripe','paypal')" json:"source"`
}
