// Package ratelimit tracks upstream throttling per service.
// Block windows are derived from 429/503 responses and their Retry-After header
// and are shared across processes through Redis.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyPrefix prefixes every per-service throttle state key.
const RedisKeyPrefix = "ibreport:throttle:"

// Backoff bounds used when a throttled response carries no Retry-After header.
const (
	// BaseBackoff is the block window after the first throttle without Retry-After.
	BaseBackoff = 2 * time.Second

	// MaxBackoff caps every block window.
	MaxBackoff = 5 * time.Minute
)

// StateKey returns the Redis key holding the state of service.
func StateKey(service string) string {
	return RedisKeyPrefix + service
}

// ThrottleState is the throttling state of one upstream service.
type ThrottleState struct {
	// Service names the upstream API (e.g. "redash", "google-ads").
	Service string `json:"service"`

	// BlockedUntil is the earliest time the next request may be sent.
	BlockedUntil time.Time `json:"blocked_until"`

	// ConsecutiveThrottles counts throttled responses since the last success.
	ConsecutiveThrottles int `json:"consecutive_throttles"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *ThrottleState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsBlocked reports whether requests must wait at now.
func (s *ThrottleState) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// WaitDuration returns how long a request must wait at now. Zero when not blocked.
func (s *ThrottleState) WaitDuration(now time.Time) time.Duration {
	if !s.IsBlocked(now) {
		return 0
	}
	return s.BlockedUntil.Sub(now)
}

// RecordThrottle extends the block window after a throttled response.
// A non-positive retryAfter falls back to exponential backoff on the consecutive count.
func (s *ThrottleState) RecordThrottle(now time.Time, retryAfter time.Duration) {
	s.ConsecutiveThrottles++
	wait := retryAfter
	if wait <= 0 {
		factor := math.Pow(2, float64(s.ConsecutiveThrottles-1))
		wait = time.Duration(float64(BaseBackoff) * factor)
	}
	if wait > MaxBackoff {
		wait = MaxBackoff
	}
	if until := now.Add(wait); until.After(s.BlockedUntil) {
		s.BlockedUntil = until
	}
	s.LastUpdate = now
}

// RecordSuccess clears the throttle counter.
func (s *ThrottleState) RecordSuccess(now time.Time) {
	s.ConsecutiveThrottles = 0
	s.BlockedUntil = time.Time{}
	s.LastUpdate = now
}

// IsThrottleStatus reports whether an HTTP status means the service is shedding load.
func IsThrottleStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// ParseRetryAfter parses a Retry-After value given as delay seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
