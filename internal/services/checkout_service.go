package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/checkout/internal/models"
	"github.com/example/checkout/internal/utils"
)

// ErrSessionClosed is returned when a status update targets a session that
// already reached a terminal state.
var ErrSessionClosed = errors.New("checkout session already in a terminal state")

// CheckoutService records checkout attempts before payment confirmation and
// advances their status as provider callbacks arrive.
type CheckoutService struct {
	db *gorm.DB
}

func NewCheckoutService(db *gorm.DB) *CheckoutService {
	return &CheckoutService{db: db}
}

// CreateSessionInput carries the attributes of a new pending session.
type CreateSessionInput struct {
	StripeSessionID string
	OfferID         string
	LanderID        string
	CustomerEmail   string
	Metadata        map[string]interface{}
	Source          string
}

// CreateSession persists a pending checkout attempt. Recording the same
// provider session id twice refreshes the pending row instead of erroring,
// since frontends may retry the create call.
func (s *CheckoutService) CreateSession(ctx context.Context, input CreateSessionInput) (*models.CheckoutSession, error) {
	if s.db == nil {
		return nil, nil
	}
	if strings.TrimSpace(input.StripeSessionID) == "" {
		return nil, errors.New("provider session id is required")
	}

	source := input.Source
	if source == "" {
		source = models.SourceStripe
	}

	session := models.CheckoutSession{
		StripeSessionID: input.StripeSessionID,
		OfferID:         input.OfferID,
		LanderID:        input.LanderID,
		Metadata:        datatypes.JSONMap(utils.EnsureMetadataCaseVariants(input.Metadata, nil)),
		Status:          models.SessionStatusPending,
		Source:          source,
	}
	if input.CustomerEmail != "" {
		email := input.CustomerEmail
		session.CustomerEmail = &email
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_session_id"}},
			DoUpdates: sessionConflictAssignments(),
		}).
		Create(&session).Error
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// sessionConflictAssignments builds the ON CONFLICT update set for a retried
// create. A sparse retry keeps the stored values: empty identifiers and a
// missing email never clobber what the first call recorded, and metadata
// merges as a JSON union.
func sessionConflictAssignments() clause.Set {
	set := clause.Assignments(map[string]interface{}{
		"offer_id":       gorm.Expr("COALESCE(NULLIF(excluded.offer_id, ''), checkout_sessions.offer_id)"),
		"lander_id":      gorm.Expr("COALESCE(NULLIF(excluded.lander_id, ''), checkout_sessions.lander_id)"),
		"customer_email": gorm.Expr("COALESCE(excluded.customer_email, checkout_sessions.customer_email)"),
		"metadata":       gorm.Expr("COALESCE(checkout_sessions.metadata, '{}'::jsonb) || COALESCE(excluded.metadata, '{}'::jsonb)"),
	})
	return append(set, clause.AssignmentColumns([]string{"updated_at"})...)
}

// AllowedTransition reports whether a session may move from one status to
// another. Transitions only go forward: pending is the sole non-terminal
// state and terminal states never change.
func AllowedTransition(from, to string) bool {
	if from != models.SessionStatusPending {
		return false
	}
	switch to {
	case models.SessionStatusCompleted, models.SessionStatusFailed, models.SessionStatusAbandoned:
		return true
	default:
		return false
	}
}

// UpdateSessionStatus advances the session identified by its provider session
// id to a terminal status, optionally attaching the payment-intent id learned
// from the provider callback. Returns ErrSessionClosed when the row exists
// but already left pending, gorm.ErrRecordNotFound when there is no row.
func (s *CheckoutService) UpdateSessionStatus(ctx context.Context, stripeSessionID, status string, paymentIntentID *string) (*models.CheckoutSession, error) {
	if s.db == nil {
		return nil, nil
	}
	if !AllowedTransition(models.SessionStatusPending, status) {
		return nil, errors.New("invalid session status: " + status)
	}

	updates := map[string]interface{}{"status": status}
	if paymentIntentID != nil && *paymentIntentID != "" {
		updates["stripe_payment_intent_id"] = *paymentIntentID
	}

	res := s.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("stripe_session_id = ? AND status = ?", stripeSessionID, models.SessionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	var session models.CheckoutSession
	if err := s.db.WithContext(ctx).
		Where("stripe_session_id = ?", stripeSessionID).
		First(&session).Error; err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		return &session, ErrSessionClosed
	}
	return &session, nil
}

// GetSession fetches a session by its provider session id.
func (s *CheckoutService) GetSession(ctx context.Context, stripeSessionID string) (*models.CheckoutSession, error) {
	if s.db == nil {
		return nil, gorm.ErrRecordNotFound
	}

	var session models.CheckoutSession
	if err := s.db.WithContext(ctx).
		Where("stripe_session_id = ?", stripeSessionID).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FailByPaymentIntent marks the pending session carrying the given
// payment-intent id as failed, for provider events that only identify the
// intent. Returns the provider session id of the affected row, if any.
func (s *CheckoutService) FailByPaymentIntent(ctx context.Context, paymentIntentID string) (string, error) {
	if s.db == nil || paymentIntentID == "" {
		return "", nil
	}

	var session models.CheckoutSession
	err := s.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	res := s.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", session.ID, models.SessionStatusPending).
		Update("status", models.SessionStatusFailed)
	if res.Error != nil {
		return session.StripeSessionID, res.Error
	}

	return session.StripeSessionID, nil
}

// AbandonStale marks pending sessions older than maxAge as abandoned and
// returns how many rows were swept.
func (s *CheckoutService) AbandonStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.db == nil {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	res := s.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status = ? AND created_at < ?", models.SessionStatusPending, cutoff).
		Update("status", models.SessionStatusAbandoned)
	return res.RowsAffected, res.Error
}
