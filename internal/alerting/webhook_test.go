package alerting

import (
	"context"
	"errors"
	"testing"

	"github.com/marketsurveil/surveil/internal/ports"
)

type countingWebhook struct {
	failUntil int
	calls     int
}

func (w *countingWebhook) Send(ctx context.Context, payload ports.NotificationPayload) error {
	w.calls++
	if w.calls <= w.failUntil {
		return errors.New("simulated 5xx")
	}
	return nil
}

func TestDeliverSucceedsAfterRetries(t *testing.T) {
	hook := &countingWebhook{failUntil: 2}
	ok := Deliver(context.Background(), hook, ports.NotificationPayload{})
	if !ok {
		t.Fatalf("expected delivery to succeed within retry budget")
	}
	if hook.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", hook.calls)
	}
}

func TestDeliverFailsAfterExhaustingRetries(t *testing.T) {
	hook := &countingWebhook{failUntil: 10}
	ok := Deliver(context.Background(), hook, ports.NotificationPayload{})
	if ok {
		t.Fatalf("expected delivery to fail after exhausting retries")
	}
	if hook.calls != maxDeliveryAttempts {
		t.Fatalf("expected %d attempts, got %d", maxDeliveryAttempts, hook.calls)
	}
}

func TestDeliverRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hook := &countingWebhook{}
	ok := Deliver(ctx, hook, ports.NotificationPayload{})
	if ok {
		t.Fatalf("expected immediate failure on cancelled context")
	}
}
