package alerting

import (
	"context"
	"time"

	"github.com/marketsurveil/surveil/internal/ports"
)

const (
	maxDeliveryAttempts = 3
	baseRetryDelay      = 1 * time.Second
	attemptDeadline     = 10 * time.Second
)

// Deliver sends payload through hook with exponential-backoff retry
// (3 attempts, base delay 1s, doubling per attempt) and a 10s
// per-attempt deadline. It returns false immediately if ctx is already
// cancelled and stops retrying if ctx is cancelled between attempts.
func Deliver(ctx context.Context, hook ports.Webhook, payload ports.NotificationPayload) bool {
	if ctx.Err() != nil {
		return false
	}

	delay := baseRetryDelay
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptDeadline)
		err := hook.Send(attemptCtx, payload)
		cancel()
		if err == nil {
			return true
		}
		if attempt == maxDeliveryAttempts {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
	}
	return false
}
