package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestTracker(t *testing.T, now time.Time) *Tracker {
	tracker := NewTracker(setupTestRedis(t), zerolog.Nop())
	tracker.now = func() time.Time { return now }
	return tracker
}

func TestTracker_GetStateMissing(t *testing.T) {
	tracker := newTestTracker(t, time.Now())

	state, err := tracker.GetState(context.Background(), "redash")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Service != "redash" || state.ConsecutiveThrottles != 0 || !state.BlockedUntil.IsZero() {
		t.Errorf("GetState() = %+v, want empty state", state)
	}
}

func TestTracker_ThrottleThenRecover(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tracker := newTestTracker(t, now)

	headers := http.Header{}
	headers.Set("Retry-After", "30")
	if err := tracker.UpdateFromResponse(ctx, "redash", http.StatusTooManyRequests, headers); err != nil {
		t.Fatalf("UpdateFromResponse(429) error = %v", err)
	}

	wait, err := tracker.WaitDuration(ctx, "redash")
	if err != nil {
		t.Fatalf("WaitDuration() error = %v", err)
	}
	if wait != 30*time.Second {
		t.Errorf("WaitDuration() = %v, want 30s", wait)
	}

	other, err := tracker.WaitDuration(ctx, "google-ads")
	if err != nil {
		t.Fatalf("WaitDuration(other) error = %v", err)
	}
	if other != 0 {
		t.Errorf("WaitDuration(other) = %v, want 0", other)
	}

	if err := tracker.UpdateFromResponse(ctx, "redash", http.StatusOK, http.Header{}); err != nil {
		t.Fatalf("UpdateFromResponse(200) error = %v", err)
	}
	wait, err = tracker.WaitDuration(ctx, "redash")
	if err != nil {
		t.Fatalf("WaitDuration() error = %v", err)
	}
	if wait != 0 {
		t.Errorf("WaitDuration() after success = %v, want 0", wait)
	}
}

func TestTracker_IgnoresClientErrors(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t, time.Now())

	if err := tracker.UpdateFromResponse(ctx, "redash", http.StatusNotFound, http.Header{}); err != nil {
		t.Fatalf("UpdateFromResponse(404) error = %v", err)
	}
	state, err := tracker.GetState(ctx, "redash")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.ConsecutiveThrottles != 0 {
		t.Errorf("ConsecutiveThrottles = %d, want 0", state.ConsecutiveThrottles)
	}
}

func TestTracker_WaitHonoursContext(t *testing.T) {
	tracker := newTestTracker(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	headers := http.Header{}
	headers.Set("Retry-After", "60")
	if err := tracker.UpdateFromResponse(ctx, "redash", http.StatusServiceUnavailable, headers); err != nil {
		t.Fatalf("UpdateFromResponse(503) error = %v", err)
	}

	cancel()
	if err := tracker.Wait(ctx, "redash"); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestTracker_RedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	tracker := NewTracker(client, zerolog.Nop())

	if _, err := tracker.WaitDuration(context.Background(), "redash"); err == nil {
		t.Error("WaitDuration() expected error with unreachable Redis")
	}
}
