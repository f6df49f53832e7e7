package services

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(orig) })
	return &buf
}

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetrySyncRecoversFromTransientErrors(t *testing.T) {
	buf := captureLog(t)

	var delays []time.Duration
	calls := 0
	err := retrySync(context.Background(), SyncContext{OfferID: "summer", PaymentIntentID: "pi_1"}, recordingSleep(&delays), func() error {
		calls++
		if calls < 3 {
			return &RequestError{Status: 500, Body: "upstream down"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, delays)
	assert.Equal(t, 2, strings.Count(buf.String(), "retrying in"))
}

func TestRetrySyncNonRetryableFailsImmediately(t *testing.T) {
	buf := captureLog(t)

	var delays []time.Duration
	calls := 0
	wantErr := &RequestError{Status: 422, Body: "bad contact"}
	err := retrySync(context.Background(), SyncContext{}, recordingSleep(&delays), func() error {
		calls++
		return wantErr
	})

	require.Error(t, err)
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
	assert.Zero(t, strings.Count(buf.String(), "retrying in"))
}

func TestRetrySyncNonRequestErrorFailsImmediately(t *testing.T) {
	var delays []time.Duration
	calls := 0
	wantErr := errors.New("connection refused")
	err := retrySync(context.Background(), SyncContext{}, recordingSleep(&delays), func() error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestRetrySyncExhaustionReturnsLastError(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := retrySync(context.Background(), SyncContext{}, recordingSleep(&delays), func() error {
		calls++
		return &RequestError{Status: 503, Body: "attempt"}
	})

	require.Error(t, err)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 503, reqErr.Status)
	assert.Equal(t, MaxGHLSyncAttempts, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, delays)
}

func TestRetrySyncCancelledContextStopsRetrying(t *testing.T) {
	calls := 0
	err := retrySync(context.Background(), SyncContext{}, func(context.Context, time.Duration) error {
		return context.Canceled
	}, func() error {
		calls++
		return &RequestError{Status: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableSyncError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: &RequestError{Status: 408}, want: true},
		{name: "rate limited", err: &RequestError{Status: 429}, want: true},
		{name: "server error", err: &RequestError{Status: 500}, want: true},
		{name: "bad gateway", err: &RequestError{Status: 502}, want: true},
		{name: "unavailable", err: &RequestError{Status: 503}, want: true},
		{name: "gateway timeout", err: &RequestError{Status: 504}, want: true},
		{name: "bad request", err: &RequestError{Status: 400}, want: false},
		{name: "unauthorized", err: &RequestError{Status: 401}, want: false},
		{name: "unprocessable", err: &RequestError{Status: 422}, want: false},
		{name: "wrapped request error", err: errors.Join(errors.New("ctx"), &RequestError{Status: 502}), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableSyncError(tt.err))
		})
	}
}
