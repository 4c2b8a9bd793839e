package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleBlockedSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ibreport_throttle_blocked_seconds",
		Help: "Remaining block window per upstream service",
	}, []string{"service"})

	throttleResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_throttle_responses_total",
		Help: "Total number of throttled (429/503) responses per upstream service",
	}, []string{"service"})

	throttleWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_throttle_waits_total",
		Help: "Total number of requests delayed by an active block window",
	}, []string{"service"})
)

// stateRetention is how long a state outlives its block window in Redis.
const stateRetention = 10 * time.Minute

// Tracker records throttling per service and tells callers how long to wait.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the state of service. A missing state is returned as unblocked.
func (t *Tracker) GetState(ctx context.Context, service string) (*ThrottleState, error) {
	data, err := t.redis.Get(ctx, StateKey(service)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &ThrottleState{Service: service}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get throttle state: %w", err)
	}

	var state ThrottleState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse throttle state: %w", err)
	}
	return &state, nil
}

func (t *Tracker) setState(ctx context.Context, state *ThrottleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal throttle state: %w", err)
	}
	ttl := state.WaitDuration(t.now()) + stateRetention
	if err := t.redis.Set(ctx, StateKey(state.Service), data, ttl).Err(); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}
	return nil
}

// UpdateFromResponse records the outcome of a response from service.
// Throttled statuses extend the block window, successes clear it, other statuses are ignored.
func (t *Tracker) UpdateFromResponse(ctx context.Context, service string, status int, headers http.Header) error {
	switch {
	case IsThrottleStatus(status):
		return t.recordThrottle(ctx, service, headers)
	case status >= 200 && status < 400:
		return t.recordSuccess(ctx, service)
	default:
		return nil
	}
}

func (t *Tracker) recordThrottle(ctx context.Context, service string, headers http.Header) error {
	state, err := t.GetState(ctx, service)
	if err != nil {
		return err
	}

	now := t.now()
	retryAfter, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		retryAfter = 0
	}
	state.RecordThrottle(now, retryAfter)

	if err := t.setState(ctx, state); err != nil {
		return err
	}

	wait := state.WaitDuration(now)
	throttleResponsesTotal.WithLabelValues(service).Inc()
	throttleBlockedSeconds.WithLabelValues(service).Set(wait.Seconds())

	t.logger.Warn().
		Str("service", service).
		Int("consecutive_throttles", state.ConsecutiveThrottles).
		Bool("retry_after", ok).
		Dur("blocked_for", wait).
		Msg("Upstream throttled - blocking further requests")
	return nil
}

func (t *Tracker) recordSuccess(ctx context.Context, service string) error {
	state, err := t.GetState(ctx, service)
	if err != nil {
		return err
	}
	if state.ConsecutiveThrottles == 0 && state.BlockedUntil.IsZero() {
		return nil
	}

	if err := t.redis.Del(ctx, StateKey(service)).Err(); err != nil {
		return fmt.Errorf("clear throttle state: %w", err)
	}
	throttleBlockedSeconds.WithLabelValues(service).Set(0)

	t.logger.Info().
		Str("service", service).
		Int("consecutive_throttles", state.ConsecutiveThrottles).
		Msg("Upstream recovered from throttling")
	return nil
}

// WaitDuration returns how long a request to service must wait before being sent.
func (t *Tracker) WaitDuration(ctx context.Context, service string) (time.Duration, error) {
	state, err := t.GetState(ctx, service)
	if err != nil {
		return 0, fmt.Errorf("get throttle state: %w", err)
	}
	return state.WaitDuration(t.now()), nil
}

// Wait blocks until service is no longer throttled or ctx is done.
func (t *Tracker) Wait(ctx context.Context, service string) error {
	wait, err := t.WaitDuration(ctx, service)
	if err != nil {
		return err
	}
	if wait <= 0 {
		return nil
	}

	throttleWaitsTotal.WithLabelValues(service).Inc()
	t.logger.Debug().
		Str("service", service).
		Dur("wait_duration", wait).
		Msg("Waiting for throttle window")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
