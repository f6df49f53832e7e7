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
)

// RecordWebhookLogInput describes one webhook delivery observation.
type RecordWebhookLogInput struct {
	PaymentIntentID string
	StripeSessionID string
	EventType       string
	OfferID         string
	LanderID        string
	Status          string
	Message         string
	Metadata        map[string]interface{}
}

// WebhookLogResult reports the ledger row after the write.
type WebhookLogResult struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
}

// WebhookLogService maintains the per-payment-intent idempotency ledger for
// inbound payment webhooks.
type WebhookLogService struct {
	db *gorm.DB
}

func NewWebhookLogService(db *gorm.DB) *WebhookLogService {
	return &WebhookLogService{db: db}
}

// RecordWebhookLog upserts the ledger row for the given payment intent.
//
// Conflict rules: attempts increments only on non-pending writes, last_error
// is set on error and cleared on success but left untouched on pending,
// metadata merges as a JSON union, last_attempt_at moves only on non-pending
// writes and last_success_at only on success.
//
// Returns nil when no database is configured: webhook processing must not
// fail merely because observability storage is unavailable.
func (s *WebhookLogService) RecordWebhookLog(ctx context.Context, input RecordWebhookLogInput) (*WebhookLogResult, error) {
	if s.db == nil {
		return nil, nil
	}
	if strings.TrimSpace(input.PaymentIntentID) == "" {
		return nil, errors.New("payment intent id is required")
	}
	if input.Status != models.WebhookStatusPending &&
		input.Status != models.WebhookStatusSuccess &&
		input.Status != models.WebhookStatusError {
		return nil, errors.New("invalid webhook log status: " + input.Status)
	}

	now := time.Now()
	row := newWebhookLogRow(input, now)

	err := s.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "payment_intent_id"}},
				DoUpdates: ledgerConflictAssignments(input, now),
			},
			clause.Returning{Columns: []clause.Column{{Name: "status"}, {Name: "attempts"}}},
		).
		Create(&row).Error
	if err != nil {
		return nil, err
	}

	return &WebhookLogResult{Status: row.Status, Attempts: row.Attempts}, nil
}

// newWebhookLogRow builds the insert values for a first-ever delivery.
func newWebhookLogRow(input RecordWebhookLogInput, now time.Time) models.WebhookLog {
	row := models.WebhookLog{
		PaymentIntentID: input.PaymentIntentID,
		StripeSessionID: input.StripeSessionID,
		EventType:       input.EventType,
		OfferID:         input.OfferID,
		LanderID:        input.LanderID,
		Status:          input.Status,
		Metadata:        datatypes.JSONMap(input.Metadata),
	}

	if input.Status != models.WebhookStatusPending {
		row.Attempts = 1
		attemptAt := now
		row.LastAttemptAt = &attemptAt
	}
	switch input.Status {
	case models.WebhookStatusSuccess:
		successAt := now
		row.LastSuccessAt = &successAt
	case models.WebhookStatusError:
		if input.Message != "" {
			message := input.Message
			row.LastError = &message
		}
	}

	return row
}

// ledgerConflictAssignments builds the ON CONFLICT update set for a
// redelivery, encoding the conflict rules documented on RecordWebhookLog.
func ledgerConflictAssignments(input RecordWebhookLogInput, now time.Time) clause.Set {
	set := map[string]interface{}{
		"status":     input.Status,
		"metadata":   gorm.Expr("COALESCE(webhook_logs.metadata, '{}'::jsonb) || COALESCE(excluded.metadata, '{}'::jsonb)"),
		"updated_at": now,
	}

	if input.Status != models.WebhookStatusPending {
		set["attempts"] = gorm.Expr("webhook_logs.attempts + 1")
		set["last_attempt_at"] = now
	}

	switch input.Status {
	case models.WebhookStatusSuccess:
		set["last_error"] = nil
		set["last_success_at"] = now
	case models.WebhookStatusError:
		set["last_error"] = input.Message
	}

	if input.StripeSessionID != "" {
		set["stripe_session_id"] = input.StripeSessionID
	}
	if input.EventType != "" {
		set["event_type"] = input.EventType
	}
	if input.OfferID != "" {
		set["offer_id"] = input.OfferID
	}
	if input.LanderID != "" {
		set["lander_id"] = input.LanderID
	}

	return clause.Assignments(set)
}

// CountErroredSince returns how many ledger rows sit in the error state with
// a delivery attempt inside the window. Zero when no database is configured.
func (s *WebhookLogService) CountErroredSince(ctx context.Context, window time.Duration) (int64, error) {
	if s.db == nil {
		return 0, nil
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.WebhookLog{}).
		Where("status = ? AND last_attempt_at >= ?", models.WebhookStatusError, time.Now().Add(-window)).
		Count(&count).Error
	return count, err
}

// CountPendingOlderThan returns how many ledger rows are still pending past
// the given age, a signal of stuck webhook processing. Zero when no database
// is configured.
func (s *WebhookLogService) CountPendingOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if s.db == nil {
		return 0, nil
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.WebhookLog{}).
		Where("status = ? AND created_at < ?", models.WebhookStatusPending, time.Now().Add(-age)).
		Count(&count).Error
	return count, err
}

// ListLogs returns ledger rows newest-first, optionally filtered by status.
func (s *WebhookLogService) ListLogs(ctx context.Context, status string, limit, offset int) ([]models.WebhookLog, int64, error) {
	if s.db == nil {
		return nil, 0, nil
	}

	query := s.db.WithContext(ctx).Model(&models.WebhookLog{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.WebhookLog
	if err := query.
		Order("updated_at desc").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
