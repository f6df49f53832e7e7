package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/example/checkout/internal/models"
)

const (
	// MaxGHLSyncAttempts bounds total attempts, not retries.
	MaxGHLSyncAttempts = 3
	ghlBaseRetryDelay  = 500 * time.Millisecond
)

// retryableStatuses are the HTTP statuses worth another attempt. Any other
// status, and any non-request error, is fatal on first sight.
var retryableStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// SyncContext carries correlation fields for retry logging.
type SyncContext struct {
	OfferID         string
	PaymentIntentID string
}

// IsRetryableSyncError reports whether err is a GHL request error carrying a
// retryable HTTP status.
func IsRetryableSyncError(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return retryableStatuses[reqErr.Status]
}

// SyncOrderWithRetry pushes the order to GHL, retrying transient failures
// with exponential backoff. The last error is returned once attempts are
// exhausted; non-retryable errors propagate immediately.
func (s *GHLService) SyncOrderWithRetry(ctx context.Context, order *models.Order, syncCtx SyncContext) error {
	return retrySync(ctx, syncCtx, s.sleep, func() error {
		return s.SyncOrder(ctx, order)
	})
}

// retrySync runs call up to MaxGHLSyncAttempts times. The delay before
// attempt n+1 is ghlBaseRetryDelay * 2^(n-1), no jitter.
func retrySync(ctx context.Context, syncCtx SyncContext, sleep func(context.Context, time.Duration) error, call func() error) error {
	var lastErr error

	for attempt := 1; attempt <= MaxGHLSyncAttempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableSyncError(err) || attempt == MaxGHLSyncAttempts {
			return lastErr
		}

		delay := ghlBaseRetryDelay * time.Duration(1<<(attempt-1))
		log.Printf("[GHL] sync attempt %d/%d failed for offer=%s intent=%s, retrying in %s: %v",
			attempt, MaxGHLSyncAttempts, syncCtx.OfferID, syncCtx.PaymentIntentID, delay, err)

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return lastErr
		}
	}

	return lastErr
}
