package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/example/checkout/internal/models"
	"github.com/example/checkout/internal/utils"
)

var ghlHTTPClient = &http.Client{Timeout: 15 * time.Second}

// RequestError is a typed error for failed GHL API calls. Only request errors
// with a retryable status are worth another attempt; everything else is fatal.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("ghl request failed: status %d, body: %s", e.Status, e.Body)
}

// GHLService pushes completed orders to GoHighLevel as contact upserts.
type GHLService struct {
	baseURL    string
	apiKey     string
	locationID string

	sleep func(ctx context.Context, d time.Duration) error
}

func NewGHLService(baseURL, apiKey, locationID string) *GHLService {
	return &GHLService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		locationID: locationID,
		sleep:      sleepWithContext,
	}
}

// Enabled reports whether GHL credentials are configured.
func (s *GHLService) Enabled() bool {
	return s.apiKey != ""
}

type ghlContactRequest struct {
	Email        string            `json:"email"`
	Name         string            `json:"name,omitempty"`
	LocationID   string            `json:"locationId,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customField,omitempty"`
}

// SyncOrder upserts a GHL contact for the order's customer, tagging it with
// the offer and attaching purchase details as custom fields.
func (s *GHLService) SyncOrder(ctx context.Context, order *models.Order) error {
	if !s.Enabled() {
		log.Println("[GHL] API key not configured, skipping sync")
		return nil
	}
	if order.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", order.ID)
	}

	tags := []string{"purchase"}
	if order.OfferID != "" {
		tags = append(tags, "offer:"+order.OfferID)
	}
	if extra := utils.MetadataList(order.Metadata, "ghl_tags"); len(extra) > 0 {
		tags = append(tags, extra...)
	}

	payload := ghlContactRequest{
		Email:      order.CustomerEmail,
		Name:       order.CustomerName,
		LocationID: s.locationID,
		Tags:       tags,
		CustomFields: map[string]string{
			"payment_intent_id": derefString(order.StripePaymentIntentID),
			"amount_total":      fmt.Sprintf("%d", order.AmountTotal),
			"currency":          order.Currency,
			"payment_source":    order.Source,
			"lander_id":         order.LanderID,
			"license_key":       utils.MetadataString(order.Metadata, "license_key"),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal GHL contact payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/contacts/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create GHL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := ghlHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute GHL request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read GHL response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Status: resp.StatusCode, Body: truncateBody(respBody)}
	}

	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncateBody(body []byte) string {
	const maxLen = 1024
	if len(body) <= maxLen {
		return string(body)
	}
	return string(body[:maxLen])
}
