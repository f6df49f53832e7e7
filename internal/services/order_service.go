package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/checkout/internal/models"
	"github.com/example/checkout/internal/utils"
)

// OrderLookupKey carries the provider identifiers that may locate an order.
// Payment-intent id is the most stable key once known, but at order-creation
// time often only the session id exists, so lookups fall back in that order.
type OrderLookupKey struct {
	StripePaymentIntentID *string
	StripeSessionID       *string
}

type lookupCandidate struct {
	column string
	value  string
}

// candidates returns the ordered (column, value) pairs to try. Nil or empty
// identifiers are skipped entirely: a NULL comparison must update zero rows,
// never match every row.
func (k OrderLookupKey) candidates() []lookupCandidate {
	var cands []lookupCandidate
	if k.StripePaymentIntentID != nil && strings.TrimSpace(*k.StripePaymentIntentID) != "" {
		cands = append(cands, lookupCandidate{column: "stripe_payment_intent_id", value: *k.StripePaymentIntentID})
	}
	if k.StripeSessionID != nil && strings.TrimSpace(*k.StripeSessionID) != "" {
		cands = append(cands, lookupCandidate{column: "stripe_session_id", value: *k.StripeSessionID})
	}
	return cands
}

// OrderService locates and materializes order rows from possibly-incomplete
// provider identifiers.
type OrderService struct {
	db *gorm.DB
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// UpdateOrderMetadata merges patch into the metadata of the single order
// matched by key, trying each lookup candidate in priority order. Returns
// true when a row was updated. A key with no usable identifiers returns
// false without touching the database.
func (s *OrderService) UpdateOrderMetadata(ctx context.Context, key OrderLookupKey, patch map[string]interface{}) (bool, error) {
	cands := key.candidates()
	if len(cands) == 0 || len(patch) == 0 {
		return false, nil
	}
	if s.db == nil {
		return false, nil
	}

	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("marshal metadata patch: %w", err)
	}

	for _, cand := range cands {
		res := s.db.WithContext(ctx).
			Model(&models.Order{}).
			Where(cand.column+" = ?", cand.value).
			Updates(map[string]interface{}{
				"metadata": gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(patchJSON)),
			})
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
	}

	return false, nil
}

// orderConflictAssignments builds the ON CONFLICT update set for a
// redelivery. Deliveries arrive from different provider surfaces carrying
// different subsets of fields, so scalar columns keep the stored value when
// the incoming one is empty and metadata merges as a JSON union.
func orderConflictAssignments() clause.Set {
	set := clause.Assignments(map[string]interface{}{
		"metadata":          gorm.Expr("COALESCE(orders.metadata, '{}'::jsonb) || COALESCE(excluded.metadata, '{}'::jsonb)"),
		"stripe_session_id": gorm.Expr("COALESCE(NULLIF(excluded.stripe_session_id, ''), orders.stripe_session_id)"),
		"stripe_charge_id":  gorm.Expr("COALESCE(NULLIF(excluded.stripe_charge_id, ''), orders.stripe_charge_id)"),
		"amount_total":      gorm.Expr("COALESCE(NULLIF(excluded.amount_total, 0), orders.amount_total)"),
		"currency":          gorm.Expr("COALESCE(NULLIF(excluded.currency, ''), orders.currency)"),
		"customer_email":    gorm.Expr("COALESCE(NULLIF(excluded.customer_email, ''), orders.customer_email)"),
		"customer_name":     gorm.Expr("COALESCE(NULLIF(excluded.customer_name, ''), orders.customer_name)"),
		"payment_status":    gorm.Expr("COALESCE(NULLIF(excluded.payment_status, ''), orders.payment_status)"),
		"payment_method":    gorm.Expr("COALESCE(NULLIF(excluded.payment_method, ''), orders.payment_method)"),
	})
	return append(set, clause.AssignmentColumns([]string{"updated_at"})...)
}

// UpsertOrder creates or updates the order identified by the payment-intent
// id, falling back to the session id when the payment-intent id is not yet
// known. At most one row exists per real-world purchase regardless of webhook
// delivery order or duplicate retries; Postgres conflict resolution supplies
// the atomicity.
func (s *OrderService) UpsertOrder(ctx context.Context, order *models.Order) error {
	if s.db == nil {
		return nil
	}
	if order.Metadata != nil {
		utils.EnsureMetadataCaseVariants(order.Metadata, nil)
	}

	if order.StripePaymentIntentID != nil && strings.TrimSpace(*order.StripePaymentIntentID) != "" {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "stripe_payment_intent_id"}},
				DoUpdates: orderConflictAssignments(),
			}).
			Create(order).Error
	}

	// No payment-intent id yet: resolve by session id so a later webhook
	// carrying the intent can still land on this row.
	if order.StripeSessionID == "" {
		return errors.New("order has neither payment intent id nor session id")
	}

	var existing models.Order
	err := s.db.WithContext(ctx).
		Where("stripe_session_id = ?", order.StripeSessionID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.db.WithContext(ctx).Create(order).Error
		}
		return err
	}

	metadataJSON, err := json.Marshal(order.Metadata)
	if err != nil {
		return fmt.Errorf("marshal order metadata: %w", err)
	}

	updates := map[string]interface{}{
		"amount_total":   order.AmountTotal,
		"currency":       order.Currency,
		"payment_status": order.PaymentStatus,
		"metadata":       gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(metadataJSON)),
	}
	if order.CustomerEmail != "" {
		updates["customer_email"] = order.CustomerEmail
	}
	if order.CustomerName != "" {
		updates["customer_name"] = order.CustomerName
	}
	if order.PaymentMethod != "" {
		updates["payment_method"] = order.PaymentMethod
	}
	if order.StripeChargeID != "" {
		updates["stripe_charge_id"] = order.StripeChargeID
	}

	return s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
}

// GetOrder fetches a single order by internal id.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.db == nil {
		return nil, gorm.ErrRecordNotFound
	}

	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("CheckoutSession").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns orders newest-first, optionally filtered by source or
// offer, with the total count for pagination.
func (s *OrderService) ListOrders(ctx context.Context, source, offerID string, limit, offset int) ([]models.Order, int64, error) {
	if s.db == nil {
		return nil, 0, nil
	}

	query := s.db.WithContext(ctx).Model(&models.Order{})
	if source != "" {
		query = query.Where("source = ?", source)
	}
	if offerID != "" {
		query = query.Where("offer_id = ?", offerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}
