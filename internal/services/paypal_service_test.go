package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountMinorUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "99.00", want: 9900},
		{in: "0.50", want: 50},
		{in: "10", want: 1000},
		{in: "1234.56", want: 123456},
		{in: " 7.99 ", want: 799},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		got, err := AmountMinorUnits(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("AmountMinorUnits(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("AmountMinorUnits(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("AmountMinorUnits(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSyntheticIDs(t *testing.T) {
	if got := SyntheticPaymentIntentID("capture_123"); got != "paypal_capture_123" {
		t.Fatalf("SyntheticPaymentIntentID = %q", got)
	}
	if got := SyntheticSessionID("order_123"); got != "paypal_order_123" {
		t.Fatalf("SyntheticSessionID = %q", got)
	}
}

const captureResponseFixture = `{
	"id": "order_123",
	"status": "COMPLETED",
	"payer": {
		"email_address": "buyer@example.com",
		"name": {"given_name": "Jo", "surname": "Buyer"}
	},
	"purchase_units": [{
		"custom_id": "summer",
		"payments": {
			"captures": [{
				"id": "capture_123",
				"status": "COMPLETED",
				"amount": {"currency_code": "USD", "value": "99.00"}
			}]
		}
	}]
}`

func newPayPalTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *PayPalService) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client-1", user)
			assert.Equal(t, "secret-1", pass)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, NewPayPalService(srv.URL, "client-1", "secret-1", "wh-1")
}

func TestCaptureOrderParsesResponse(t *testing.T) {
	_, svc := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders/order_123/capture", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(captureResponseFixture))
	})

	result, err := svc.CaptureOrder(context.Background(), "order_123")
	require.NoError(t, err)

	assert.Equal(t, "COMPLETED", result.Status)
	assert.Equal(t, "Jo Buyer", result.PayerName())
	assert.Equal(t, "buyer@example.com", result.Payer.EmailAddress)

	capture := result.FirstCapture()
	require.NotNil(t, capture)
	assert.Equal(t, "capture_123", capture.ID)
	assert.Equal(t, "USD", capture.Amount.CurrencyCode)

	amount, err := AmountMinorUnits(capture.Amount.Value)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), amount)
	assert.Equal(t, "paypal_capture_123", SyntheticPaymentIntentID(capture.ID))
}

func TestDoRequestRefreshesTokenOn401(t *testing.T) {
	calls := 0
	_, svc := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(captureResponseFixture))
	})

	result, err := svc.CaptureOrder(context.Background(), "order_123")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "COMPLETED", result.Status)
}

func TestVerifyWebhookSignature(t *testing.T) {
	_, svc := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/notification/verify-webhook-signature", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"verification_status":"SUCCESS"}`))
	})

	ok, err := svc.VerifyWebhookSignature(context.Background(), WebhookHeaders{
		TransmissionID: "t-1",
	}, []byte(`{"id":"evt"}`))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPayPalDisabledWithoutCredentials(t *testing.T) {
	svc := NewPayPalService("http://paypal.invalid", "", "", "")
	assert.False(t, svc.Enabled())

	_, err := svc.CaptureOrder(context.Background(), "order_123")
	assert.Error(t, err)
}
