package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestComputeBackoffDoublesEachAttempt(t *testing.T) {
	base := 5 * time.Second
	first := computeBackoff(1, base, 2)
	second := computeBackoff(2, base, 2)
	third := computeBackoff(3, base, 2)

	if first != 5*time.Second {
		t.Fatalf("expected first backoff 5s, got %s", first)
	}
	if second != 10*time.Second {
		t.Fatalf("expected second backoff 10s, got %s", second)
	}
	if third != 20*time.Second {
		t.Fatalf("expected third backoff 20s, got %s", third)
	}
}

func TestJobFromMessageParsesFields(t *testing.T) {
	orderID := uuid.New()
	msg := redis.XMessage{
		ID: "1-0",
		Values: map[string]any{
			"orderId":    orderID.String(),
			"attempt":    "2",
			"enqueuedAt": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano),
		},
	}
	job, err := jobFromMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.OrderID != orderID {
		t.Fatalf("expected orderID %s, got %s", orderID, job.OrderID)
	}
	if job.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", job.Attempt)
	}
}

func TestJobFromMessageRejectsInvalidOrderID(t *testing.T) {
	msg := redis.XMessage{ID: "1-0", Values: map[string]any{"orderId": "not-a-uuid"}}
	if _, err := jobFromMessage(msg); err == nil {
		t.Fatal("expected error for malformed orderId")
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	if opts.MaxAttempts != 3 {
		t.Fatalf("expected default MaxAttempts 3, got %d", opts.MaxAttempts)
	}
	if opts.BaseDelay != 5*time.Second {
		t.Fatalf("expected default BaseDelay 5s, got %s", opts.BaseDelay)
	}
	if opts.Multiplier != 2 {
		t.Fatalf("expected default Multiplier 2, got %v", opts.Multiplier)
	}
}
