package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var paypalHTTPClient = &http.Client{Timeout: 15 * time.Second}

const paypalTokenLeeway = 30 * time.Second

// PayPalService wraps the PayPal REST v2 API: order creation, capture, and
// webhook signature verification. Access tokens are cached until shortly
// before expiry; concurrent callers share the cached token.
type PayPalService struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalService(baseURL, clientID, clientSecret, webhookID string) *PayPalService {
	return &PayPalService{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
	}
}

// Enabled reports whether PayPal credentials are configured.
func (s *PayPalService) Enabled() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// SyntheticPaymentIntentID derives the local payment-intent key for a PayPal
// capture, keeping PayPal orders addressable through the same lookup chain as
// Stripe payments.
func SyntheticPaymentIntentID(captureID string) string {
	return "paypal_" + captureID
}

// SyntheticSessionID derives the local session key for a PayPal order.
func SyntheticSessionID(orderID string) string {
	return "paypal_" + orderID
}

// AmountMinorUnits converts a PayPal decimal amount string ("99.00") to
// integer minor units (9900).
func AmountMinorUnits(value string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *PayPalService) getAccessToken(ctx context.Context, force bool) (string, error) {
	if !s.Enabled() {
		return "", errors.New("paypal credentials are not configured")
	}

	if !force {
		s.tokenMu.RLock()
		if s.token != "" && time.Now().Add(paypalTokenLeeway).Before(s.tokenExpiry) {
			token := s.token
			s.tokenMu.RUnlock()
			return token, nil
		}
		s.tokenMu.RUnlock()
	}

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	// Double-check after acquiring the write lock.
	if !force && s.token != "" && time.Now().Add(paypalTokenLeeway).Before(s.tokenExpiry) {
		return s.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create paypal auth request: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := paypalHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute paypal auth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read paypal auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tokenResp paypalTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("unmarshal paypal auth response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("paypal auth response missing access_token")
	}

	s.token = tokenResp.AccessToken
	if tokenResp.ExpiresIn > 0 {
		s.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	} else {
		s.tokenExpiry = time.Now().Add(5 * time.Minute)
	}

	return s.token, nil
}

// doRequest executes an authenticated PayPal API call, refreshing the token
// and retrying once on 401.
func (s *PayPalService) doRequest(ctx context.Context, method, path string, payload, out interface{}) error {
	token, err := s.getAccessToken(ctx, false)
	if err != nil {
		return err
	}

	status, body, err := s.execute(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		token, err = s.getAccessToken(ctx, true)
		if err != nil {
			return err
		}
		status, body, err = s.execute(ctx, method, path, payload, token)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("paypal %s %s failed: status %d, body: %s", method, path, status, truncateBody(body))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal paypal response: %w", err)
		}
	}

	return nil
}

func (s *PayPalService) execute(ctx context.Context, method, path string, payload interface{}, token string) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal paypal payload: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create paypal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := paypalHTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute paypal request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read paypal response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// PayPalAmount is a currency/value pair as PayPal encodes it.
type PayPalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// PayPalOrder is the subset of a PayPal order response this service reads.
type PayPalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// PayPalCapture is one capture inside a captured order.
type PayPalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount PayPalAmount `json:"amount"`
}

// PayPalCaptureResult is the subset of a capture response this service reads.
type PayPalCaptureResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
		Name         struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []PayPalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// FirstCapture returns the first capture in the result, or nil.
func (r *PayPalCaptureResult) FirstCapture() *PayPalCapture {
	for _, unit := range r.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			return &unit.Payments.Captures[0]
		}
	}
	return nil
}

// PayerName joins the payer's given name and surname.
func (r *PayPalCaptureResult) PayerName() string {
	return strings.TrimSpace(r.Payer.Name.GivenName + " " + r.Payer.Name.Surname)
}

type paypalCreateOrderRequest struct {
	Intent        string `json:"intent"`
	PurchaseUnits []struct {
		CustomID string       `json:"custom_id,omitempty"`
		Amount   PayPalAmount `json:"amount"`
	} `json:"purchase_units"`
}

// CreateOrder creates a CAPTURE-intent PayPal order for the given amount.
func (s *PayPalService) CreateOrder(ctx context.Context, amount PayPalAmount, offerID string) (*PayPalOrder, error) {
	req := paypalCreateOrderRequest{Intent: "CAPTURE"}
	req.PurchaseUnits = make([]struct {
		CustomID string       `json:"custom_id,omitempty"`
		Amount   PayPalAmount `json:"amount"`
	}, 1)
	req.PurchaseUnits[0].CustomID = offerID
	req.PurchaseUnits[0].Amount = amount

	var order PayPalOrder
	if err := s.doRequest(ctx, http.MethodPost, "/v2/checkout/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder captures an approved PayPal order.
func (s *PayPalService) CaptureOrder(ctx context.Context, orderID string) (*PayPalCaptureResult, error) {
	var result PayPalCaptureResult
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := s.doRequest(ctx, http.MethodPost, path, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WebhookHeaders are the PayPal transmission headers needed for verification.
type WebhookHeaders struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
}

type paypalVerifyRequest struct {
	TransmissionID   string          `json:"transmission_id"`
	TransmissionTime string          `json:"transmission_time"`
	TransmissionSig  string          `json:"transmission_sig"`
	CertURL          string          `json:"cert_url"`
	AuthAlgo         string          `json:"auth_algo"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type paypalVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal whether the delivery is authentic.
func (s *PayPalService) VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, event json.RawMessage) (bool, error) {
	if s.webhookID == "" {
		return false, errors.New("paypal webhook id is not configured")
	}

	req := paypalVerifyRequest{
		TransmissionID:   headers.TransmissionID,
		TransmissionTime: headers.TransmissionTime,
		TransmissionSig:  headers.TransmissionSig,
		CertURL:          headers.CertURL,
		AuthAlgo:         headers.AuthAlgo,
		WebhookID:        s.webhookID,
		WebhookEvent:     event,
	}

	var resp paypalVerifyResponse
	if err := s.doRequest(ctx, http.MethodPost, "/v1/notification/verify-webhook-signature", req, &resp); err != nil {
		return false, err
	}

	return resp.VerificationStatus == "SUCCESS", nil
}
